package ids

import "github.com/google/uuid"

// AutoClientPrefix marks identifiers generated for clients created without one.
const AutoClientPrefix = "AUTO_"

// AutoClientID returns "AUTO_" followed by the first seven characters of a
// random UUID.
func AutoClientID() string {
	return AutoClientPrefix + uuid.NewString()[:7]
}
