// Package transport defines the core interfaces and types for lightmq transports.
// Each transport implementation (rabbitmq, nats, kafka, etc.) lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport is the Watermill side of a messenger. Every link opens its own
// subscriber so that the backend can apply the link's consumer group.
type Transport struct {
	Publisher message.Publisher

	// NewSubscriber opens a subscriber for a consumer group. Links sharing a
	// group compete for messages where the backend supports it; a unique group
	// receives every message.
	NewSubscriber func(group string) (message.Subscriber, error)

	// Close releases resources shared by the publisher and subscribers. May be nil.
	Close func() error
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetTransport returns the transport type name.
	GetTransport() string

	// Session
	GetServiceURL() string
	GetClientID() string
	GetUser() string
	GetPassword() string
	GetTLSInsecureSkipVerify() bool

	// Kafka
	GetKafkaBrokers() []string

	// NATS
	GetNATSURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
