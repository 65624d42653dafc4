// Package transport binds the client configuration to the backend registry
// and hands the result to the Watermill engine.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/lightmq/internal/runtime/config"
	"github.com/drblury/lightmq/internal/runtime/engine"
	"github.com/drblury/lightmq/internal/runtime/logging"
	lmtransport "github.com/drblury/lightmq/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/lightmq/transport/transports"
)

// Factory abstracts how lightmq opens message transports.
type Factory interface {
	Build(ctx context.Context, cfg lmtransport.Config, logger watermill.LoggerAdapter) (lmtransport.Transport, error)
}

// DefaultFactory returns the built-in transport factory that uses the
// modular transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, cfg lmtransport.Config, logger watermill.LoggerAdapter) (lmtransport.Transport, error) {
	if cfg == nil {
		return lmtransport.Transport{}, fmt.Errorf("config is required")
	}
	return lmtransport.Build(ctx, cfg, logger)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(ctx context.Context, cfg lmtransport.Config, logger watermill.LoggerAdapter) (lmtransport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, cfg lmtransport.Config, logger watermill.LoggerAdapter) (lmtransport.Transport, error) {
	return f(ctx, cfg, logger)
}

// EngineBuilder returns the engine.TransportBuilder that opens a backend for
// each messenger connect.
func EngineBuilder(factory Factory, conf *config.Config, logger logging.ServiceLogger) engine.TransportBuilder {
	if factory == nil {
		factory = DefaultFactory()
	}
	if conf == nil {
		conf = &config.Config{}
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	adapter := logging.NewWatermillAdapter(logger)

	return func(ctx context.Context, service string, session engine.Session) (lmtransport.Transport, error) {
		sessionCfg := &SessionConfig{Config: conf, Service: service, Session: session}
		return factory.Build(ctx, sessionCfg, adapter.With(watermill.LogFields{
			"service":   service,
			"transport": sessionCfg.GetTransport(),
		}))
	}
}
