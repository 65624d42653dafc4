package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsSharedSubscriptions indicates links with the same group compete
	// for messages. When false, every shared link receives every message.
	SupportsSharedSubscriptions bool

	// SupportsOrdering indicates the transport guarantees message ordering.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsTLS indicates amqps service URLs are honoured.
	SupportsTLS bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                        "rabbitmq",
		SupportsSharedSubscriptions: true,
		SupportsOrdering:            true,
		SupportsAck:                 true,
		SupportsNack:                true,
		SupportsTLS:                 true,
	}

	// NATSCapabilities for NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:                        "nats",
		SupportsSharedSubscriptions: true,
		MaxMessageSize:              1048576, // Default 1MB
	}

	// KafkaCapabilities for Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                        "kafka",
		SupportsSharedSubscriptions: true,
		SupportsOrdering:            true,
		SupportsAck:                 true,
		MaxMessageSize:              1048576, // Default 1MB
	}

	// AWSCapabilities for AWS SNS/SQS transport.
	AWSCapabilities = Capabilities{
		Name:                        "aws",
		SupportsSharedSubscriptions: true,
		SupportsAck:                 true,
		SupportsNack:                true,
		MaxMessageSize:              262144, // 256KB
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
