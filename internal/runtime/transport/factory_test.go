package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/lightmq/internal/runtime/config"
	"github.com/drblury/lightmq/internal/runtime/engine"
	"github.com/drblury/lightmq/internal/runtime/logging"
	lmtransport "github.com/drblury/lightmq/transport"
	"github.com/drblury/lightmq/transport/transporttest"
)

func TestDefaultFactory_Build_Channel(t *testing.T) {
	cfg := &SessionConfig{
		Config:  &config.Config{Transport: "channel"},
		Service: "amqp://factory-test:5672",
	}

	tr, err := DefaultFactory().Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	require.NotNil(t, tr.Publisher)
	require.NotNil(t, tr.NewSubscriber)
	require.NotNil(t, tr.Close)
	assert.NoError(t, tr.Close())
}

func TestDefaultFactory_Build_NilConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, watermill.NopLogger{})
	assert.ErrorContains(t, err, "config is required")
}

func TestDefaultFactory_Build_InvalidTransport(t *testing.T) {
	cfg := &SessionConfig{Config: &config.Config{Transport: "invalid-transport"}}
	_, err := DefaultFactory().Build(context.Background(), cfg, watermill.NopLogger{})
	assert.ErrorContains(t, err, "unknown transport")
}

func TestBuiltInTransportsRegistered(t *testing.T) {
	for _, name := range []string{"aws", "channel", "kafka", "nats", "rabbitmq"} {
		assert.True(t, lmtransport.DefaultRegistry.Has(name), name)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := &SessionConfig{
		Config:  &config.Config{KafkaBrokers: []string{"k:9092"}, NATSURL: "nats://n:4222"},
		Service: "amqp://host:5672",
		Session: engine.Session{ClientID: "client_1", User: "u", Password: "p"},
	}

	assert.Equal(t, config.DefaultTransport, cfg.GetTransport())
	assert.Equal(t, "amqp://host:5672", cfg.GetServiceURL())
	assert.Equal(t, "client_1", cfg.GetClientID())
	assert.Equal(t, "u", cfg.GetUser())
	assert.Equal(t, "p", cfg.GetPassword())
	assert.Equal(t, []string{"k:9092"}, cfg.GetKafkaBrokers())
	assert.Equal(t, "nats://n:4222", cfg.GetNATSURL())

	cfg.Config.Transport = "nats"
	assert.Equal(t, "nats", cfg.GetTransport())
}

func TestEngineBuilder(t *testing.T) {
	var seen lmtransport.Config
	factory := FactoryFunc(func(ctx context.Context, cfg lmtransport.Config, logger watermill.LoggerAdapter) (lmtransport.Transport, error) {
		seen = cfg
		assert.NotNil(t, logger)
		return lmtransport.Transport{Publisher: &transporttest.Publisher{}}, nil
	})

	conf := &config.Config{Transport: "kafka"}
	build := EngineBuilder(factory, conf, logging.NewNopServiceLogger())

	tr, err := build(context.Background(), "amqp://svc:5672", engine.Session{ClientID: "c1", User: "u"})
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)

	require.NotNil(t, seen)
	assert.Equal(t, "kafka", seen.GetTransport())
	assert.Equal(t, "amqp://svc:5672", seen.GetServiceURL())
	assert.Equal(t, "c1", seen.GetClientID())
	assert.Equal(t, "u", seen.GetUser())
}

func TestEngineBuilderPropagatesErrors(t *testing.T) {
	factory := FactoryFunc(func(context.Context, lmtransport.Config, watermill.LoggerAdapter) (lmtransport.Transport, error) {
		return lmtransport.Transport{}, errors.New("dial failed")
	})

	_, err := EngineBuilder(factory, nil, nil)(context.Background(), "amqp://svc:5672", engine.Session{})
	assert.ErrorContains(t, err, "dial failed")
}
