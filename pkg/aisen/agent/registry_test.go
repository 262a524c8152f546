package agent

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/recording"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

func testRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	r := NewRegistry(opts...)
	t.Cleanup(r.Stop)
	return r
}

func validConfig(logger aisen.Logger, backend aisen.Backend) Config {
	return Config{APIKey: "asdf", Logger: logger, Backend: backend}
}

func TestRegistry_InitialState(t *testing.T) {
	r := testRegistry(t)

	assert.Nil(t, r.Instance())
	require.NotNil(t, r.Callbacks())
	assert.Nil(t, r.Callbacks().ExceptionFilter())
	assert.Nil(t, r.Callbacks().ExceptionFingerprint())
	assert.Nil(t, r.Callbacks().BacktraceFilter())
}

func TestRegistry_Start_Disabled(t *testing.T) {
	logger := &captureLogger{}
	backend := recording.New()
	r := testRegistry(t)

	cfg := validConfig(logger, backend)
	cfg.Disabled = true

	assert.False(t, r.Start(FromConfig(cfg)))
	assert.Nil(t, r.Instance())
	assert.True(t, logger.has("info", "disabled"), logger.String())
	assert.Equal(t, 0, backend.Pings(), "a disabled config is never pinged")
}

func TestRegistry_Start_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"missing api key", func(c *Config) { c.APIKey = ""; c.Backend = nil }},
		{"unknown backend", func(c *Config) { c.Backend = nil; c.BackendName = "carrier-pigeon" }},
		{"negative queue", func(c *Config) { c.QueueSize = -1 }},
		{"bad overflow policy", func(c *Config) { c.OverflowPolicy = "drop_random" }},
		{"jitter too large", func(c *Config) { c.Jitter = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &captureLogger{}
			r := testRegistry(t)
			cfg := validConfig(logger, recording.New())
			tt.cfg(&cfg)

			assert.False(t, r.Start(FromConfig(cfg)))
			assert.Nil(t, r.Instance())
			assert.True(t, logger.has("warn", "invalid"), logger.String())
		})
	}
}

func TestRegistry_Start_PingFails(t *testing.T) {
	logger := &captureLogger{}
	backend := recording.New()
	backend.FailPing(errors.New("401 unauthorized"))
	r := testRegistry(t)

	assert.False(t, r.Start(FromConfig(validConfig(logger, backend))))
	assert.Nil(t, r.Instance())
	assert.True(t, logger.has("warn", "failed to connect"), logger.String())
	assert.Equal(t, 1, backend.Pings())
}

func TestRegistry_Start_PingPanics(t *testing.T) {
	logger := &captureLogger{}
	r := testRegistry(t)

	assert.False(t, r.Start(FromConfig(validConfig(logger, panicBackend{}))))
	assert.Nil(t, r.Instance())
	assert.True(t, logger.has("warn", "failed to connect"), logger.String())
}

func TestRegistry_Start_Succeeds(t *testing.T) {
	logger := &captureLogger{}
	backend := recording.New()
	r := testRegistry(t)

	assert.True(t, r.Start(FromConfig(validConfig(logger, backend))))

	a := r.Instance()
	require.NotNil(t, a)
	assert.Same(t, backend, a.Backend())
	assert.True(t, logger.has("info", "Starting"), logger.String())
	assert.True(t, logger.has("info", aisen.Version), logger.String())
}

func TestRegistry_Start_UsesAgentFactory(t *testing.T) {
	var got Config
	var built *Agent
	r := testRegistry(t, WithAgentFactory(func(cfg Config, callbacks *CallbackChain, queue worker.Queue) *Agent {
		got = cfg
		built = New(cfg, callbacks, queue)
		return built
	}))

	cfg := validConfig(&captureLogger{}, recording.New())
	cfg.Environment = "staging"
	require.True(t, r.Start(FromConfig(cfg)))

	assert.Same(t, built, r.Instance())
	assert.Equal(t, "asdf", got.APIKey)
	assert.Equal(t, "staging", got.Environment)
	assert.Same(t, r.Callbacks(), built.Callbacks())
}

func TestRegistry_Start_FromOptions(t *testing.T) {
	logger := &captureLogger{}
	backend := recording.New()
	r := testRegistry(t)

	ok := r.Start(FromOptions(map[string]any{
		"api_key":     "asdf",
		"logger":      logger,
		"backend":     backend,
		"environment": "production",
	}))

	require.True(t, ok, logger.String())
	assert.Equal(t, "production", r.Instance().Config().Environment)
}

func TestRegistry_Start_FromOptions_DecodeFailure(t *testing.T) {
	logger := &captureLogger{}
	r := testRegistry(t)

	ok := r.Start(FromOptions(map[string]any{
		"api_key":    "asdf",
		"logger":     logger,
		"queue_size": "lots",
	}))

	assert.False(t, ok)
	assert.Nil(t, r.Instance())
	assert.True(t, logger.has("warn", "invalid"), logger.String())
}

func TestRegistry_Start_NamedTestBackend(t *testing.T) {
	r := testRegistry(t)

	require.True(t, r.Start(FromOptions(map[string]any{
		"backend": "test",
		"logger":  &captureLogger{},
	})))

	rec, ok := r.Instance().Backend().(*recording.Backend)
	require.True(t, ok, "backend = %T", r.Instance().Backend())
	assert.Equal(t, 1, rec.Pings(), "the handshake uses the same backend the agent delivers through")
}

func TestRegistry_Start_Reentrant_StopsPreviousFirst(t *testing.T) {
	j := &journal{}
	var queues []*fakeQueue
	r := testRegistry(t, WithWorkerFactory(queueFactory(j, &queues)))

	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))
	first := r.Instance()
	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))
	second := r.Instance()

	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"q1.start", "q1.stop", "q2.start"}, j.list())
	assert.ErrorIs(t, first.Record(context.Background(), aisen.ErrorEvent{}), ErrAgentStopped)
}

func TestRegistry_Start_FailedReentrantKeepsPrevious(t *testing.T) {
	j := &journal{}
	var queues []*fakeQueue
	r := testRegistry(t, WithWorkerFactory(queueFactory(j, &queues)))

	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))
	first := r.Instance()

	broken := recording.New()
	broken.FailPing(errors.New("down"))
	assert.False(t, r.Start(FromConfig(validConfig(&captureLogger{}, broken))))

	assert.Same(t, first, r.Instance())
	assert.Equal(t, []string{"q1.start"}, j.list())
}

func TestRegistry_Stop(t *testing.T) {
	j := &journal{}
	var queues []*fakeQueue
	r := testRegistry(t, WithWorkerFactory(queueFactory(j, &queues)))

	r.Stop()
	assert.Nil(t, r.Instance(), "stop without start is a no-op")

	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))
	r.Stop()
	assert.Nil(t, r.Instance())
	r.Stop()
	r.Stop()
	assert.Nil(t, r.Instance())
	assert.Equal(t, []string{"q1.start", "q1.stop"}, j.list())
}

func TestRegistry_ConcurrentStartStop(t *testing.T) {
	r := testRegistry(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				r.Start(FromConfig(Config{BackendName: BackendNull, Logger: aisen.NopLogger{}}))
			} else {
				r.Stop()
			}
		}()
	}
	wg.Wait()
	r.Stop()
	assert.Nil(t, r.Instance())
}

func funcPointer(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func TestRegistry_CallbackSlots_LastWriteWins(t *testing.T) {
	r := testRegistry(t)

	filterA := func(*aisen.ErrorEvent) bool { return false }
	filterB := func(*aisen.ErrorEvent) bool { return true }
	r.ExceptionFilter(filterA)
	assert.Equal(t, funcPointer(filterA), funcPointer(r.Callbacks().ExceptionFilter()))
	r.ExceptionFilter(filterB)
	assert.Equal(t, funcPointer(filterB), funcPointer(r.Callbacks().ExceptionFilter()))

	fpA := func(*aisen.ErrorEvent) string { return "a" }
	fpB := func(*aisen.ErrorEvent) string { return "b" }
	r.ExceptionFingerprint(fpA)
	r.ExceptionFingerprint(fpB)
	assert.Equal(t, "b", r.Callbacks().ExceptionFingerprint()(&aisen.ErrorEvent{}))

	btA := func(f []aisen.Frame) []aisen.Frame { return f }
	btB := func([]aisen.Frame) []aisen.Frame { return nil }
	assert.Nil(t, r.Callbacks().BacktraceFilter())
	r.BacktraceFilter(btA)
	assert.Equal(t, funcPointer(btA), funcPointer(r.Callbacks().BacktraceFilter()))
	r.BacktraceFilter(btB)
	assert.Equal(t, funcPointer(btB), funcPointer(r.Callbacks().BacktraceFilter()))
}

func TestRegistry_CallbacksSharedAcrossAgents(t *testing.T) {
	r := testRegistry(t)
	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))
	first := r.Instance()
	require.True(t, r.Start(FromConfig(validConfig(&captureLogger{}, recording.New()))))

	assert.Same(t, first.Callbacks(), r.Instance().Callbacks())
}

func TestRegistry_NotifyWithoutAgent(t *testing.T) {
	r := testRegistry(t)

	assert.ErrorIs(t, r.Notify(context.Background(), errors.New("boom")), ErrNotStarted)
	assert.ErrorIs(t, r.Flush(context.Background()), ErrNotStarted)
}

func TestDefaultRegistry(t *testing.T) {
	r := NewRegistry()
	prev := SetDefault(r)
	t.Cleanup(func() {
		Stop()
		SetDefault(prev)
	})

	assert.Same(t, r, Default())
	assert.Nil(t, Instance())

	backend := recording.New()
	require.True(t, Start(FromConfig(validConfig(&captureLogger{}, backend))))
	assert.Same(t, r.Instance(), Instance())

	ExceptionFingerprint(func(*aisen.ErrorEvent) string { return "fixed" })
	require.NoError(t, Notify(context.Background(), errors.New("boom")))
	require.NoError(t, Flush(context.Background()))

	events := backend.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "fixed", events[0].Fingerprint)

	Stop()
	assert.Nil(t, Instance())
}
