package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{"ack and nack", Capabilities{SupportsAck: true, SupportsNack: true}, true},
		{"ack only", Capabilities{SupportsAck: true}, false},
		{"neither", Capabilities{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.SupportsReliableDelivery())
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	tests := []struct {
		caps     Capabilities
		name     string
		shared   bool
		reliable bool
	}{
		{ChannelCapabilities, "channel", false, true},
		{RabbitMQCapabilities, "rabbitmq", true, true},
		{NATSCapabilities, "nats", true, false},
		{KafkaCapabilities, "kafka", true, false},
		{AWSCapabilities, "aws", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.caps.Name)
			assert.Equal(t, tt.shared, tt.caps.SupportsSharedSubscriptions)
			assert.Equal(t, tt.reliable, tt.caps.SupportsReliableDelivery())
		})
	}

	assert.True(t, RabbitMQCapabilities.SupportsTLS)
	assert.Equal(t, int64(262144), AWSCapabilities.MaxMessageSize)
}
