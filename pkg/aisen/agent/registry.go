package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

// AgentFactory builds the agent published by Start.
type AgentFactory func(cfg Config, callbacks *CallbackChain, queue worker.Queue) *Agent

// WorkerFactory builds the queue a new agent delivers through.
type WorkerFactory func(cfg Config, backend aisen.Backend, logger aisen.Logger) worker.Queue

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAgentFactory replaces how agents are constructed.
func WithAgentFactory(factory AgentFactory) RegistryOption {
	return func(r *Registry) {
		if factory != nil {
			r.newAgent = factory
		}
	}
}

// WithWorkerFactory replaces how worker queues are constructed.
func WithWorkerFactory(factory WorkerFactory) RegistryOption {
	return func(r *Registry) {
		if factory != nil {
			r.newWorker = factory
		}
	}
}

// WithCallbackChain shares an existing callback chain.
func WithCallbackChain(callbacks *CallbackChain) RegistryOption {
	return func(r *Registry) {
		if callbacks != nil {
			r.callbacks = callbacks
		}
	}
}

// Registry owns at most one active Agent and the callback chain shared by
// every agent it starts. Start and Stop are serialized; Instance is a
// lock-free read.
type Registry struct {
	mu        sync.Mutex
	active    atomic.Pointer[Agent]
	callbacks *CallbackChain
	newAgent  AgentFactory
	newWorker WorkerFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		callbacks: NewCallbackChain(),
		newAgent:  New,
		newWorker: defaultWorker,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultWorker(cfg Config, backend aisen.Backend, logger aisen.Logger) worker.Queue {
	return worker.New(backend, cfg.WorkerConfig(), worker.WithLogger(logger))
}

// Start normalizes src into a Config and, when it is enabled, valid, and
// the backend answers the handshake, replaces the active agent with a new
// one. It reports whether a new agent became active. On any rejection the
// previously active agent, if any, keeps running.
func (r *Registry) Start(src Source) bool {
	return r.StartContext(context.Background(), src)
}

// StartContext is Start with a caller context bounding the handshake.
func (r *Registry) StartContext(ctx context.Context, src Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if src == nil {
		aisen.DefaultLogger().Warn("invalid configuration, not starting", "error", "no configuration given")
		return false
	}

	cfg, err := src.config()
	logger := cfg.logger()
	if err != nil {
		logger.Warn("invalid configuration, not starting", "error", err)
		return false
	}
	if cfg.Disabled {
		logger.Info("aisen agent disabled, not starting")
		return false
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("invalid configuration, not starting", "error", err)
		return false
	}

	cfg.Backend = cfg.backend()
	if !cfg.Ping(ctx) {
		logger.Warn("failed to connect to aisen backend", "backend", cfg.BackendName, "endpoint", cfg.Endpoint)
		return false
	}

	if prev := r.active.Load(); prev != nil {
		logger.Debug("stopping previous aisen agent")
		prev.stop()
	}

	a := r.newAgent(cfg, r.callbacks, r.newWorker(cfg, cfg.Backend, logger))
	a.start()
	logger.Info("Starting aisen agent version "+aisen.Version,
		"version", aisen.Version,
		"backend", cfg.BackendName,
		"environment", cfg.Environment)
	r.active.Store(a)
	return true
}

// Stop stops the active agent, waiting at most its FlushTimeout for
// pending events, and clears the handle. It is a no-op when nothing is
// active.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a := r.active.Swap(nil); a != nil {
		a.stop()
	}
}

// Instance returns the active agent, or nil.
func (r *Registry) Instance() *Agent {
	return r.active.Load()
}

// Callbacks returns the shared callback chain.
func (r *Registry) Callbacks() *CallbackChain {
	return r.callbacks
}

// ExceptionFilter sets the exception filter slot.
func (r *Registry) ExceptionFilter(fn ExceptionFilterFunc) {
	r.callbacks.SetExceptionFilter(fn)
}

// ExceptionFingerprint sets the exception fingerprint slot.
func (r *Registry) ExceptionFingerprint(fn ExceptionFingerprintFunc) {
	r.callbacks.SetExceptionFingerprint(fn)
}

// BacktraceFilter sets the backtrace filter slot.
func (r *Registry) BacktraceFilter(fn BacktraceFilterFunc) {
	r.callbacks.SetBacktraceFilter(fn)
}

// Notify reports err through the active agent.
func (r *Registry) Notify(ctx context.Context, err error, opts ...NotifyOption) error {
	return r.Instance().Notify(ctx, err, opts...)
}

// Flush waits for the active agent's queue to drain.
func (r *Registry) Flush(ctx context.Context) error {
	return r.Instance().Flush(ctx)
}

var defaultRegistry atomic.Pointer[Registry]

func init() {
	defaultRegistry.Store(NewRegistry())
}

// Default returns the process-wide registry used by the package-level
// functions.
func Default() *Registry {
	return defaultRegistry.Load()
}

// SetDefault replaces the process-wide registry and returns the previous
// one. It does not stop the previous registry's agent.
func SetDefault(r *Registry) *Registry {
	if r == nil {
		r = NewRegistry()
	}
	return defaultRegistry.Swap(r)
}

// Start starts an agent in the default registry.
func Start(src Source) bool { return Default().Start(src) }

// Stop stops the default registry's agent.
func Stop() { Default().Stop() }

// Instance returns the default registry's active agent, or nil.
func Instance() *Agent { return Default().Instance() }

// Callbacks returns the default registry's callback chain.
func Callbacks() *CallbackChain { return Default().Callbacks() }

// ExceptionFilter sets the exception filter on the default registry.
func ExceptionFilter(fn ExceptionFilterFunc) { Default().ExceptionFilter(fn) }

// ExceptionFingerprint sets the exception fingerprint on the default
// registry.
func ExceptionFingerprint(fn ExceptionFingerprintFunc) { Default().ExceptionFingerprint(fn) }

// BacktraceFilter sets the backtrace filter on the default registry.
func BacktraceFilter(fn BacktraceFilterFunc) { Default().BacktraceFilter(fn) }

// Notify reports err through the default registry's agent.
func Notify(ctx context.Context, err error, opts ...NotifyOption) error {
	return Default().Notify(ctx, err, opts...)
}

// Flush waits for the default registry's agent to drain.
func Flush(ctx context.Context) error { return Default().Flush(ctx) }
