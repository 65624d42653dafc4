// Package engine defines the transport engine surface the client drives and a
// Watermill-backed implementation of it.
//
// Every Messenger method is non-blocking except Work. The client polls Status
// and Receive from its cooperative loop; background goroutines inside an engine
// only ever touch mutex-protected state.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Delivery annotation keys set on messages the service could not convert.
const (
	AnnotationMalformedPrefix      = "x-opt-message-malformed-"
	AnnotationMalformedCondition   = AnnotationMalformedPrefix + "condition"
	AnnotationMalformedDescription = AnnotationMalformedPrefix + "description"
	AnnotationMalformedMQMDPrefix  = AnnotationMalformedPrefix + "MQMD."
)

// Status tracks an outbound envelope.
type Status int32

const (
	StatusPending Status = iota
	StatusSettled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSettled:
		return "settled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Annotation is a typed delivery annotation. Values are carried as text and
// interpreted according to ValueType ("string", "symbol", "int32", "int64",
// "boolean").
type Annotation struct {
	Key       string `json:"key"`
	KeyType   string `json:"key_type,omitempty"`
	Value     string `json:"value"`
	ValueType string `json:"value_type,omitempty"`
}

// Envelope is an outbound message. The engine updates its status from its own
// goroutines; readers use CurrentStatus.
type Envelope struct {
	ID          string
	Address     string
	Topic       string
	Body        []byte
	ContentType string
	QoS         int
	TTL         time.Duration
	Properties  map[string]string
	Annotations []Annotation

	status atomic.Int32
	mu     sync.Mutex
	err    error
}

// SetStatus records the outcome of a publish. err is kept only for
// StatusFailed.
func (e *Envelope) SetStatus(s Status, err error) {
	e.mu.Lock()
	if s == StatusFailed {
		e.err = err
	}
	e.mu.Unlock()
	e.status.Store(int32(s))
}

func (e *Envelope) CurrentStatus() Status {
	return Status(e.status.Load())
}

// Err returns the publish failure, if any.
func (e *Envelope) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// RawDelivery is an inbound message as handed out by Receive.
type RawDelivery struct {
	// LinkAddress is the full subscription address of the link that received
	// the message.
	LinkAddress string
	// Address is service + "/" + topic.
	Address     string
	Body        []byte
	ContentType string
	TTL         time.Duration
	Properties  map[string]string
	Annotations []Annotation

	msg *message.Message
}

// LinkOptions configures a receiving link.
type LinkOptions struct {
	QoS int
	// Credit is the maximum number of unsettled deliveries on the link.
	Credit int
	// AutoSettle marks deliveries settled on arrival (QoS 0 or auto-confirm).
	AutoSettle bool
}

// Messenger is the transport engine surface.
type Messenger interface {
	Start() error
	Stop()
	Stopped() bool

	// Connect attaches the messenger to service. It may block briefly while the
	// backend dials.
	Connect(service string) error

	// Put queues env; Send flushes queued envelopes to the backend.
	Put(env *Envelope) error
	Send() error
	Status(env *Envelope) Status

	// Receive returns up to limit deliveries that have arrived on any link.
	Receive(limit int) []*RawDelivery

	Subscribe(address string, opts LinkOptions) error
	Unsubscribe(address string) error
	// Flow grants credit more deliveries on the link at address.
	Flow(address string, credit int)

	Accept(d *RawDelivery) error
	Settle(d *RawDelivery) error

	LastErrorText() string
	RemoteIdleTimeout(service string) time.Duration

	// Work performs pending engine work, waiting at most timeout. It returns
	// the failure that broke the messenger, if any.
	Work(timeout time.Duration) error
}

// Session identifies the client a messenger acts for.
type Session struct {
	ClientID string
	User     string
	Password string
}

// Factory creates a messenger for one connect attempt.
type Factory func(session Session) (Messenger, error)
