package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/debug"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/null"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/recording"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/server"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

// Backend names accepted by Config.BackendName.
const (
	BackendServer = "server"
	BackendNull   = "null"
	BackendTest   = "test"
	BackendDebug  = "debug"
)

// NoJitter and NoMaxElapsed switch off retry jitter and the elapsed-time
// bound. A zero Jitter or MaxElapsed takes the default instead.
const (
	NoJitter     = -1.0
	NoMaxElapsed = time.Duration(-1)
)

// Config is the policy snapshot an Agent runs with. Start takes a private
// copy; a published Config is never mutated.
type Config struct {
	// APIKey authenticates with the collector. Required unless Disabled or
	// a non-network backend is selected.
	APIKey string `mapstructure:"api_key"`

	// Disabled makes Start a logged no-op.
	Disabled bool `mapstructure:"disabled"`

	// Logger receives the agent's own diagnostics. Defaults to
	// aisen.DefaultLogger.
	Logger aisen.Logger `mapstructure:"-"`

	// Backend overrides BackendName with an injected transport.
	Backend aisen.Backend `mapstructure:"-"`

	// BackendName selects a built-in transport: server (default), null,
	// test, or debug.
	BackendName string `mapstructure:"backend"`

	// Endpoint is the collector base URL for the server backend.
	Endpoint string `mapstructure:"endpoint"`

	// Environment, Hostname, and ProjectRoot describe the reporting host.
	Environment string `mapstructure:"environment"`
	Hostname    string `mapstructure:"hostname"`
	ProjectRoot string `mapstructure:"project_root"`

	// Scrub enables default scrubbing of every event before the callback
	// chain runs.
	Scrub bool `mapstructure:"scrub"`

	// Delivery policy. Zero values take the defaults from DefaultConfig;
	// use NoJitter and NoMaxElapsed to disable those two.
	QueueSize         int           `mapstructure:"queue_size"`
	OverflowPolicy    string        `mapstructure:"overflow_policy"`
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Jitter            float64       `mapstructure:"jitter"`
	FlushTimeout      time.Duration `mapstructure:"flush_timeout"`
	PingTimeout       time.Duration `mapstructure:"ping_timeout"`
	DeliverTimeout    time.Duration `mapstructure:"deliver_timeout"`
}

// DefaultConfig returns a Config with production defaults and no API key.
func DefaultConfig() Config {
	wc := worker.DefaultConfig()
	return Config{
		BackendName:       BackendServer,
		Endpoint:          server.DefaultEndpoint,
		QueueSize:         wc.QueueSize,
		OverflowPolicy:    wc.Overflow.String(),
		PushTimeout:       wc.PushTimeout,
		MaxAttempts:       wc.MaxAttempts,
		MaxElapsed:        wc.MaxElapsed,
		InitialBackoff:    wc.Backoff.Initial,
		MaxBackoff:        wc.Backoff.Max,
		BackoffMultiplier: wc.Backoff.Multiplier,
		Jitter:            wc.Backoff.Jitter,
		FlushTimeout:      5 * time.Second,
		PingTimeout:       10 * time.Second,
		DeliverTimeout:    wc.DeliverTimeout,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BackendName == "" {
		c.BackendName = d.BackendName
	}
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = d.OverflowPolicy
	}
	if c.PushTimeout == 0 {
		c.PushTimeout = d.PushTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxElapsed == 0 {
		c.MaxElapsed = d.MaxElapsed
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = d.Jitter
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.DeliverTimeout == 0 {
		c.DeliverTimeout = d.DeliverTimeout
	}
	return c
}

// Validate reports every problem that makes the Config unusable. A
// disabled Config is always valid.
func (c Config) Validate() error {
	if c.Disabled {
		return nil
	}

	var errs []error
	name := strings.ToLower(c.BackendName)
	switch name {
	case "", BackendServer, BackendNull, BackendTest, BackendDebug:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.BackendName))
	}
	if c.APIKey == "" && c.Backend == nil && (name == "" || name == BackendServer) {
		errs = append(errs, errors.New("api_key is required"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts))
	}
	if _, err := worker.ParseOverflowPolicy(c.OverflowPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Jitter != NoJitter && (c.Jitter < 0 || c.Jitter >= 0.5) {
		errs = append(errs, fmt.Errorf("jitter must be in [0, 0.5) or NoJitter, got %v", c.Jitter))
	}
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("backoff_multiplier must be at least 1, got %v", c.BackoffMultiplier))
	}
	for field, d := range map[string]time.Duration{
		"push_timeout":    c.PushTimeout,
		"max_elapsed":     c.MaxElapsed,
		"initial_backoff": c.InitialBackoff,
		"max_backoff":     c.MaxBackoff,
		"flush_timeout":   c.FlushTimeout,
		"ping_timeout":    c.PingTimeout,
		"deliver_timeout": c.DeliverTimeout,
	} {
		if d < 0 && !(field == "max_elapsed" && d == NoMaxElapsed) {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", field, d))
		}
	}
	return errors.Join(errs...)
}

// Valid is the boolean form of Validate.
func (c Config) Valid() bool {
	return c.Validate() == nil
}

// Ping performs a live handshake through the configured backend, bounded by
// PingTimeout. Any failure, including a panic in the backend, yields false.
func (c Config) Ping(ctx context.Context) (ok bool) {
	logger := c.logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("backend ping panicked", "panic", r)
			ok = false
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.PingTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.backend().Ping(ctx); err != nil {
		logger.Debug("backend ping failed", "backend", c.BackendName, "error", err)
		return false
	}
	return true
}

// logger returns the configured logger or the default one.
func (c Config) logger() aisen.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return aisen.DefaultLogger()
}

// backend returns the injected backend or builds the named one.
func (c Config) backend() aisen.Backend {
	if c.Backend != nil {
		return c.Backend
	}
	switch strings.ToLower(c.BackendName) {
	case BackendNull:
		return null.New()
	case BackendTest:
		return recording.New()
	case BackendDebug:
		return debug.New(debug.WithVerbose())
	default:
		return server.New(c.APIKey,
			server.WithEndpoint(c.Endpoint),
			server.WithTimeout(c.DeliverTimeout),
			server.WithServerInfo(server.ServerInfo{
				Environment: c.Environment,
				Hostname:    c.Hostname,
				ProjectRoot: c.ProjectRoot,
			}),
		)
	}
}

// WorkerConfig translates the delivery policy for the worker.
func (c Config) WorkerConfig() worker.Config {
	overflow, _ := worker.ParseOverflowPolicy(c.OverflowPolicy)
	return worker.Config{
		QueueSize:      c.QueueSize,
		Overflow:       overflow,
		PushTimeout:    c.PushTimeout,
		MaxAttempts:    c.MaxAttempts,
		MaxElapsed:     max(c.MaxElapsed, 0),
		DeliverTimeout: c.DeliverTimeout,
		Backoff: worker.Backoff{
			Initial:    c.InitialBackoff,
			Max:        c.MaxBackoff,
			Multiplier: c.BackoffMultiplier,
			Jitter:     max(c.Jitter, 0),
		},
	}
}
