// Package nats provides a NATS Core transport for lightmq.
package nats

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/lightmq/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport. The NATS URL comes from the config
// rather than the service URL; the client id names the connection.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = natsgo.DefaultURL
	}
	marshaler := &nats.NATSMarshaler{}
	options := Options(cfg)
	jsConfig := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   jsConfig,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher: publisher,
		NewSubscriber: func(group string) (message.Subscriber, error) {
			subConfig := nats.SubscriberConfig{
				URL:         url,
				NatsOptions: options,
				Unmarshaler: marshaler,
				JetStream:   jsConfig,
			}
			// Only shared links join a queue group; private links see every message.
			if strings.HasPrefix(group, "share-") {
				subConfig.QueueGroupPrefix = group
			}
			return SubscriberFactory(subConfig, logger)
		},
	}, nil
}

// Options returns the connection options for the session.
func Options(cfg transport.Config) []natsgo.Option {
	var options []natsgo.Option
	if id := cfg.GetClientID(); id != "" {
		options = append(options, natsgo.Name(id))
	}
	if user := cfg.GetUser(); user != "" {
		options = append(options, natsgo.UserInfo(user, cfg.GetPassword()))
	}
	return options
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
