package metadata

import (
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// KeyPrefix starts every header lightmq writes, properties included.
const KeyPrefix = "lightmq_"

// Attach writes md onto msg. Lightmq headers already on msg are dropped first;
// anything else a backend or Watermill put there is left alone.
func Attach(msg *message.Message, md Metadata) {
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata, len(md))
	}
	for k := range msg.Metadata {
		if strings.HasPrefix(k, KeyPrefix) {
			delete(msg.Metadata, k)
		}
	}
	for k, v := range md {
		msg.Metadata.Set(k, v)
	}
}

// Extract copies the lightmq headers of msg into a new map. Backend headers
// such as AMQP or Kafka bookkeeping never reach a delivery.
func Extract(msg *message.Message) Metadata {
	md := Metadata{}
	if msg == nil {
		return md
	}
	for k, v := range msg.Metadata {
		if strings.HasPrefix(k, KeyPrefix) {
			md[k] = v
		}
	}
	return md
}
