package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	ErrUnknownTransport    = errors.New("lightmq: unknown transport")
	ErrIncompleteTransport = errors.New("lightmq: transport has no publisher or subscriber factory")
)

// Registry maps backend names to builders and capabilities. Names are case
// insensitive; they are stored lower case.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	build Builder
	caps  Capabilities
}

// DefaultRegistry holds the backends registered by the transport packages.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces a backend. Capabilities registered earlier under
// the same name are kept.
func (r *Registry) Register(name string, builder Builder) {
	key := registryKey(name, builder)

	r.mu.Lock()
	defer r.mu.Unlock()
	caps := r.entries[key].caps
	if caps.Name == "" {
		caps.Name = key
	}
	r.entries[key] = entry{build: builder, caps: caps}
}

// RegisterWithCapabilities adds or replaces a backend together with what it
// supports.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	key := registryKey(name, builder)
	if caps.Name == "" {
		caps.Name = key
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{build: builder, caps: caps}
}

func registryKey(name string, builder Builder) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		panic("lightmq: transport name is empty")
	}
	if builder == nil {
		panic(fmt.Sprintf("lightmq: transport %q registered without a builder", key))
	}
	return key
}

// GetCapabilities returns what the named backend supports, or a zero set
// carrying only the name when it is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[strings.ToLower(name)]; ok {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build opens the backend selected by cfg. A backend must hand back both a
// publisher and a subscriber factory, since every messenger publishes and
// opens links.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := strings.ToLower(cfg.GetTransport())
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	tr, err := e.build(ctx, cfg, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	if tr.Publisher == nil || tr.NewSubscriber == nil {
		if tr.Close != nil {
			_ = tr.Close()
		}
		return Transport{}, fmt.Errorf("%w: %s", ErrIncompleteTransport, name)
	}
	return tr, nil
}

// Names returns the registered backend names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[strings.ToLower(name)]
	return ok
}

// Register adds a backend to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a backend and its capabilities to the default
// registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build opens a backend from the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// Names lists the backends of the default registry.
func Names() []string {
	return DefaultRegistry.Names()
}
