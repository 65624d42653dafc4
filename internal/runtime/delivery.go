package runtime

import (
	"strconv"
	"strings"
	"time"

	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
)

const (
	deliveryKindMessage   = "message"
	deliveryKindMalformed = "malformed"
)

// Message describes a delivered message.
type Message struct {
	// Body is the raw wire body; listeners receive it decoded.
	Body        []byte
	Topic       string
	ContentType string
	TTL         time.Duration
	Properties  map[string]string
}

// Destination identifies the subscription a delivery matched.
type Destination struct {
	TopicPattern string
	Share        string
}

// Malformed carries the diagnostics of a delivery the service could not
// convert. MQMD and Extensions hold typed annotation values: string, int32,
// int64 or bool.
type Malformed struct {
	Condition   string
	Description string
	MQMD        map[string]any
	Extensions  map[string]any
}

// Delivery is handed to message and malformed listeners.
type Delivery struct {
	Message     Message
	Destination Destination
	Malformed   *Malformed

	confirm func() error
}

// NeedsConfirm reports whether Confirm must be called to release the
// delivery's link credit.
func (d *Delivery) NeedsConfirm() bool {
	return d.confirm != nil
}

// Confirm settles a manually confirmed QoS 1 delivery and restores its unit of
// link credit. It may be called from any goroutine. Later calls fail with
// ErrAlreadyConfirmed; for auto-confirmed deliveries it does nothing.
func (d *Delivery) Confirm() error {
	if d.confirm == nil {
		return nil
	}
	return d.confirm()
}

func newDelivery(s *Subscription, raw *enginepkg.RawDelivery) *Delivery {
	topic := raw.Address
	if _, rest, ok := enginepkg.SplitAddress(raw.Address); ok {
		topic = rest
	}
	return &Delivery{
		Message: Message{
			Body:        raw.Body,
			Topic:       topic,
			ContentType: raw.ContentType,
			TTL:         raw.TTL,
			Properties:  raw.Properties,
		},
		Destination: Destination{
			TopicPattern: s.pattern,
			Share:        s.share,
		},
		Malformed: classify(raw.Annotations),
	}
}

// classify returns nil unless the malformed condition annotation is present.
func classify(annotations []enginepkg.Annotation) *Malformed {
	var (
		m     Malformed
		found bool
	)
	for _, a := range annotations {
		switch {
		case a.Key == enginepkg.AnnotationMalformedCondition:
			m.Condition = a.Value
			found = true
		case a.Key == enginepkg.AnnotationMalformedDescription:
			m.Description = a.Value
		case strings.HasPrefix(a.Key, enginepkg.AnnotationMalformedMQMDPrefix):
			if m.MQMD == nil {
				m.MQMD = make(map[string]any)
			}
			m.MQMD[strings.TrimPrefix(a.Key, enginepkg.AnnotationMalformedMQMDPrefix)] = annotationValue(a)
		case strings.HasPrefix(a.Key, enginepkg.AnnotationMalformedPrefix):
			if m.Extensions == nil {
				m.Extensions = make(map[string]any)
			}
			m.Extensions[strings.TrimPrefix(a.Key, enginepkg.AnnotationMalformedPrefix)] = annotationValue(a)
		}
	}
	if !found {
		return nil
	}
	return &m
}

// annotationValue converts numeric and boolean annotations. Values that do
// not parse stay as text.
func annotationValue(a enginepkg.Annotation) any {
	switch a.ValueType {
	case "int32":
		if v, err := strconv.ParseInt(a.Value, 10, 32); err == nil {
			return int32(v)
		}
	case "int64":
		if v, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
			return v
		}
	case "boolean":
		if v, err := strconv.ParseBool(a.Value); err == nil {
			return v
		}
	}
	return a.Value
}
