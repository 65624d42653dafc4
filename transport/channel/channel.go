// Package channel provides an in-memory Go channel transport for lightmq.
// Clients connected to the same service URL in one process share a broker.
// This transport is useful for testing and local development.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/lightmq/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

type hub struct {
	pub  message.Publisher
	sub  message.Subscriber
	refs int
}

var (
	hubsMu sync.Mutex
	hubs   = map[string]*hub{}
)

// Build attaches to the in-memory broker for the configured service URL,
// creating it on first use. Consumer groups are not supported: every link
// receives every message.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	key := cfg.GetServiceURL()

	hubsMu.Lock()
	h, ok := hubs[key]
	if !ok {
		pub, sub := Factory(gochannel.Config{}, logger)
		h = &hub{pub: pub, sub: sub}
		hubs[key] = h
	}
	h.refs++
	hubsMu.Unlock()

	var once sync.Once
	return transport.Transport{
		Publisher: sharedPublisher{h.pub},
		NewSubscriber: func(string) (message.Subscriber, error) {
			return sharedSubscriber{h.sub}, nil
		},
		Close: func() error {
			var err error
			once.Do(func() { err = release(key, h) })
			return err
		},
	}, nil
}

func release(key string, h *hub) error {
	hubsMu.Lock()
	h.refs--
	last := h.refs == 0
	if last && hubs[key] == h {
		delete(hubs, key)
	}
	hubsMu.Unlock()

	if !last {
		return nil
	}
	return h.pub.Close()
}

// ActiveBrokers reports how many in-memory brokers are alive.
func ActiveBrokers() int {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	return len(hubs)
}

// sharedPublisher and sharedSubscriber leave the broker open on Close; it is
// released by Transport.Close once the last client detaches.
type sharedPublisher struct {
	message.Publisher
}

func (sharedPublisher) Close() error { return nil }

type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
