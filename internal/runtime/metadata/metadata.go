// Package metadata describes the headers the transport engine attaches to every
// message it publishes on the bus topic.
package metadata

import (
	"strconv"
	"strings"
	"time"
)

// Keys written by the engine. Application properties are stored under
// PropertyPrefix so they never collide with these.
const (
	KeyTopic       = "lightmq_topic"
	KeyContentType = "lightmq_content_type"
	KeyTTL         = "lightmq_ttl_ms"
	KeyQoS         = "lightmq_qos"
	KeyAnnotations = "lightmq_annotations"
	PropertyPrefix = "lightmq_prop_"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithProperties returns a clone carrying props as application properties.
func (m Metadata) WithProperties(props map[string]string) Metadata {
	cloned := m.cloneWithExtra(len(props))
	for k, v := range props {
		cloned[PropertyPrefix+k] = v
	}
	return cloned
}

// Properties extracts the application properties. It returns nil when there
// are none.
func (m Metadata) Properties() map[string]string {
	var props map[string]string
	for k, v := range m {
		if !strings.HasPrefix(k, PropertyPrefix) {
			continue
		}
		if props == nil {
			props = make(map[string]string)
		}
		props[strings.TrimPrefix(k, PropertyPrefix)] = v
	}
	return props
}

// WithTTL records ttl in milliseconds. A zero ttl is not recorded.
func (m Metadata) WithTTL(ttl time.Duration) Metadata {
	if ttl <= 0 {
		return m.Clone()
	}
	return m.With(KeyTTL, strconv.FormatInt(ttl.Milliseconds(), 10))
}

// TTL returns the recorded time to live, or zero when absent or unreadable.
func (m Metadata) TTL() time.Duration {
	raw, ok := m[KeyTTL]
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
