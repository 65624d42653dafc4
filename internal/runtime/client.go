package runtime

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/lightmq/internal/runtime/config"
	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	idspkg "github.com/drblury/lightmq/internal/runtime/ids"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
	looppkg "github.com/drblury/lightmq/internal/runtime/loop"
	servicepkg "github.com/drblury/lightmq/internal/runtime/service"
	transportpkg "github.com/drblury/lightmq/internal/runtime/transport"
)

// ClientDependencies holds the optional collaborators of a Client. Leave
// fields nil to use the defaults.
type ClientDependencies struct {
	// EngineFactory creates the messenger for each connect attempt. Defaults
	// to the Watermill engine over the configured transport.
	EngineFactory enginepkg.Factory
	// TransportFactory is handed to the default engine factory.
	TransportFactory transportpkg.Factory
	// ServiceSource takes precedence over Config.Service. A service.Func is
	// invoked on every connect attempt.
	ServiceSource servicepkg.Source
	// Loop runs callbacks, events and polls. When nil the client runs its own
	// loop on a goroutine until Close, with idle polls paced by
	// Config.PollInterval or DefaultPollInterval. A caller that Runs its own
	// loop should set PollInterval; zero re-polls on the next turn.
	Loop *looppkg.Loop
	// Metrics records client activity. Config.MetricsEnabled selects the
	// process-wide collectors when nil.
	Metrics        *ClientMetrics
	TracerProvider trace.TracerProvider
}

// Client talks to a publish/subscribe service through a transport engine.
// Methods may be called from any goroutine; callbacks and events always run
// on the client's loop.
type Client struct {
	conf     configpkg.Config
	logger   loggingpkg.ServiceLogger
	id       string
	user     string
	password string
	source   servicepkg.Source
	factory  enginepkg.Factory

	loop     *looppkg.Loop
	ownsLoop bool
	stopLoop context.CancelFunc
	loopDone chan struct{}

	events  eventRegistry
	metrics *ClientMetrics
	tracer  trace.Tracer

	mu                sync.Mutex
	state             State
	generation        uint64
	messenger         enginepkg.Messenger
	service           string
	connectWaiters    []ConnectCallback
	disconnectWaiters []DisconnectCallback
	connectQueued     bool
	queuedConnects    []ConnectCallback
	subscriptions     map[string]*Subscription
	pendingSends      int
	sendsIdle         chan struct{}
	closed            bool
}

var defaultClientMetrics = sync.OnceValue(func() *ClientMetrics {
	return NewClientMetrics(nil)
})

// NewClient validates conf and returns a disconnected client.
func NewClient(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ClientDependencies) (*Client, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	cfg := conf.WithDefaults()

	source := deps.ServiceSource
	if source == nil {
		urls, err := servicepkg.Normalize(cfg.Service)
		if err != nil {
			return nil, err
		}
		source = servicepkg.Static(urls...)
	}

	id := cfg.ClientID
	if id == "" {
		id = idspkg.AutoClientID()
	}
	logger := log.With(loggingpkg.LogFields{"client_id": id})

	metrics := deps.Metrics
	if metrics == nil && cfg.MetricsEnabled {
		metrics = defaultClientMetrics()
	}
	if metrics != nil {
		if err := metrics.Register(); err != nil {
			return nil, err
		}
	}

	factory := deps.EngineFactory
	if factory == nil {
		factory = enginepkg.NewWatermillFactory(enginepkg.WatermillOptions{
			Topic:       cfg.Topic,
			IdleTimeout: cfg.IdleTimeout,
			Build:       transportpkg.EngineBuilder(deps.TransportFactory, &cfg, logger),
			Logger:      logger,
		})
	}

	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Client{
		conf:          cfg,
		logger:        logger,
		id:            id,
		user:          cfg.User,
		password:      cfg.Password,
		source:        source,
		factory:       factory,
		metrics:       metrics,
		tracer:        tp.Tracer(tracerName),
		state:         StateDisconnected,
		subscriptions: make(map[string]*Subscription),
	}

	if deps.Loop != nil {
		c.loop = deps.Loop
	} else {
		// Run never sleeps while tasks are queued, so idle polls must wait.
		if c.conf.PollInterval == 0 {
			c.conf.PollInterval = configpkg.DefaultPollInterval
		}
		c.loop = looppkg.New()
		c.ownsLoop = true
		ctx, cancel := context.WithCancel(context.Background())
		c.stopLoop = cancel
		c.loopDone = make(chan struct{})
		go func() {
			defer close(c.loopDone)
			_ = c.loop.Run(ctx)
		}()
	}

	logger.Info("Client created", loggingpkg.LogFields{
		"transport": cfg.Transport,
		"config":    cfg.String(),
	})
	return c, nil
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

// Service returns the service URL in use, or "" unless connected.
func (c *Client) Service() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ""
	}
	return c.service
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasConnected reports whether the client is connected.
func (c *Client) HasConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("Client state changed", loggingpkg.LogFields{
		"from": c.state.String(),
		"to":   s.String(),
	})
	c.state = s
	c.metrics.recordState(s)
}

// repost re-arms a poll. An idle poll waits PollInterval when one is set.
func (c *Client) repost(fn func(), idle bool) {
	if idle && c.conf.PollInterval > 0 {
		c.loop.PostAfter(c.conf.PollInterval, fn)
		return
	}
	c.loop.Post(fn)
}

func (c *Client) addSendLocked() {
	if c.pendingSends == 0 {
		c.sendsIdle = make(chan struct{})
	}
	c.pendingSends++
}

func (c *Client) sendDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingSends--
	if c.pendingSends == 0 {
		close(c.sendsIdle)
		c.sendsIdle = nil
	}
}
