// Package rabbitmq provides a RabbitMQ/AMQP transport for lightmq.
package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/lightmq/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

var closeConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build dials the service URL with the session credentials. One connection is
// shared by the publisher and every link subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	uri, err := AMQPURI(cfg.GetServiceURL(), cfg.GetUser(), cfg.GetPassword())
	if err != nil {
		return transport.Transport{}, err
	}

	connCfg := ConnectionConfig(uri, cfg)
	conn, err := ConnectionFactory(connCfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	pubConfig := amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicName)
	pubConfig.Connection = connCfg

	publisher, err := PublisherFactory(pubConfig, logger, conn)
	if err != nil {
		_ = closeConnection(conn)
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher: publisher,
		NewSubscriber: func(group string) (message.Subscriber, error) {
			return SubscriberFactory(SubscriberConfig(uri, group, connCfg), logger, conn)
		},
		Close: func() error { return closeConnection(conn) },
	}, nil
}

// SubscriberConfig returns the queue configuration for a link group. Shared
// groups get a durable queue that competing consumers meet on; private groups
// get a non-durable one.
func SubscriberConfig(uri, group string, connCfg amqp.ConnectionConfig) amqp.Config {
	var subConfig amqp.Config
	if strings.HasPrefix(group, "share-") {
		subConfig = amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicNameWithSuffix(group))
	} else {
		subConfig = amqp.NewNonDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicNameWithSuffix(group))
	}
	subConfig.Connection = connCfg
	return subConfig
}

// ConnectionConfig builds the connection settings. amqps services use TLS
// with the service host as server name.
func ConnectionConfig(uri string, cfg transport.Config) amqp.ConnectionConfig {
	props := amqp091.NewConnectionProperties()
	if id := cfg.GetClientID(); id != "" {
		props.SetClientConnectionName(id)
	}

	connCfg := amqp.ConnectionConfig{
		AmqpURI:    uri,
		AmqpConfig: &amqp091.Config{Properties: props},
		Reconnect:  amqp.DefaultReconnectConfig(),
	}
	if parsed, err := url.Parse(uri); err == nil && parsed.Scheme == "amqps" {
		host := parsed.Hostname()
		connCfg.TLSConfig = &tls.Config{
			ServerName:         host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.GetTLSInsecureSkipVerify(),
		}
	}
	return connCfg
}

// AMQPURI inserts the credentials into a normalised scheme://host:port service URL.
func AMQPURI(service, user, password string) (string, error) {
	parsed, err := url.Parse(service)
	if err != nil {
		return "", fmt.Errorf("rabbitmq: invalid service URL %q: %w", service, err)
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("rabbitmq: unsupported scheme %q", parsed.Scheme)
	}
	if _, _, err := net.SplitHostPort(parsed.Host); err != nil {
		return "", fmt.Errorf("rabbitmq: invalid service URL %q: %w", service, err)
	}
	if user != "" {
		parsed.User = url.UserPassword(user, password)
	}
	parsed.Path = ""
	return parsed.String(), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
