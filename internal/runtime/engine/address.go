package engine

import (
	"fmt"
	"strings"
)

const (
	privatePrefix = "private:"
	sharePrefix   = "share:"
)

// LinkAddress is a parsed subscription address of the form
// service/private:pattern or service/share:name:pattern.
type LinkAddress struct {
	Service string
	Share   string
	Pattern string
}

// String reassembles the address.
func (a LinkAddress) String() string {
	if a.Share == "" {
		return a.Service + "/" + privatePrefix + a.Pattern
	}
	return a.Service + "/" + sharePrefix + a.Share + ":" + a.Pattern
}

// SplitAddress separates scheme://host:port from whatever follows the first
// slash after the authority.
func SplitAddress(address string) (service, rest string, ok bool) {
	scheme, after, found := strings.Cut(address, "://")
	if !found {
		return "", "", false
	}
	authority, rest, found := strings.Cut(after, "/")
	if !found {
		return "", "", false
	}
	return scheme + "://" + authority, rest, true
}

// ParseLinkAddress parses a subscription address.
func ParseLinkAddress(address string) (LinkAddress, error) {
	service, rest, ok := SplitAddress(address)
	if !ok {
		return LinkAddress{}, fmt.Errorf("invalid link address %q", address)
	}

	switch {
	case strings.HasPrefix(rest, privatePrefix):
		pattern := strings.TrimPrefix(rest, privatePrefix)
		if pattern == "" {
			return LinkAddress{}, fmt.Errorf("invalid link address %q: missing pattern", address)
		}
		return LinkAddress{Service: service, Pattern: pattern}, nil
	case strings.HasPrefix(rest, sharePrefix):
		share, pattern, found := strings.Cut(strings.TrimPrefix(rest, sharePrefix), ":")
		if !found || share == "" || pattern == "" {
			return LinkAddress{}, fmt.Errorf("invalid link address %q: expected share:<name>:<pattern>", address)
		}
		return LinkAddress{Service: service, Share: share, Pattern: pattern}, nil
	default:
		return LinkAddress{}, fmt.Errorf("invalid link address %q: expected private: or share: prefix", address)
	}
}
