package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/backends/recording"
)

func newTestAgent(t *testing.T, cfg Config) (*Agent, *fakeQueue) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = &captureLogger{}
	}
	if cfg.Backend == nil {
		cfg.Backend = recording.New()
	}
	q := &fakeQueue{name: "q"}
	a := New(cfg.withDefaults(), NewCallbackChain(), q)
	a.start()
	return a, q
}

func TestAgent_Record_PreparesEvent(t *testing.T) {
	a, q := newTestAgent(t, Config{Environment: "staging", Hostname: "web-7"})

	err := a.Record(context.Background(), aisen.ErrorEvent{
		Severity:   aisen.SeverityError,
		ErrorType:  "timeout",
		Message:    "upstream timed out",
		StackTrace: "main.handler()\n\t/app/handler.go:20 +0x1\n",
	})
	require.NoError(t, err)

	jobs := q.pushed()
	require.Len(t, jobs, 1)
	event := jobs[0].Event
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "staging", event.Environment)
	require.NotNil(t, event.SystemState)
	assert.Equal(t, "web-7", event.SystemState.HostName)
	require.Len(t, event.Frames, 1)
	assert.Equal(t, "main.handler", event.Frames[0].Function)
	assert.Equal(t, aisen.Fingerprint(event), event.Fingerprint, "default fingerprint applies without a callback")
	assert.Equal(t, event.Timestamp, jobs[0].CreatedAt)
}

func TestAgent_Record_KeepsExplicitEnvironment(t *testing.T) {
	a, q := newTestAgent(t, Config{Environment: "staging"})

	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{Environment: "canary"}))
	assert.Equal(t, "canary", q.pushed()[0].Event.Environment)
}

func TestAgent_Record_ExceptionFilterSuppresses(t *testing.T) {
	a, q := newTestAgent(t, Config{})
	a.Callbacks().SetExceptionFilter(func(e *aisen.ErrorEvent) bool {
		return e.ErrorType == "ignored"
	})

	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{ErrorType: "ignored"}))
	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{ErrorType: "kept"}))

	jobs := q.pushed()
	require.Len(t, jobs, 1)
	assert.Equal(t, "kept", jobs[0].Event.ErrorType)
}

func TestAgent_Record_FingerprintCallback(t *testing.T) {
	a, q := newTestAgent(t, Config{})
	a.Callbacks().SetExceptionFingerprint(func(e *aisen.ErrorEvent) string {
		if e.ErrorType == "custom" {
			return "group-1"
		}
		return ""
	})

	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{ErrorType: "custom"}))
	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{ErrorType: "other"}))

	jobs := q.pushed()
	require.Len(t, jobs, 2)
	assert.Equal(t, "group-1", jobs[0].Event.Fingerprint)
	assert.Len(t, jobs[1].Event.Fingerprint, 32, "empty callback result falls back to the default")
}

func TestAgent_Record_BacktraceFilter(t *testing.T) {
	a, q := newTestAgent(t, Config{})
	a.Callbacks().SetBacktraceFilter(func(frames []aisen.Frame) []aisen.Frame {
		var kept []aisen.Frame
		for _, f := range frames {
			if !strings.Contains(f.File, "/vendor/") {
				kept = append(kept, f)
			}
		}
		return kept
	})

	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{
		Frames: []aisen.Frame{
			{Function: "lib.call", File: "/app/vendor/lib/lib.go", Line: 3},
			{Function: "main.run", File: "/app/main.go", Line: 9},
		},
		StackTrace: "lib.call()\n\t/app/vendor/lib/lib.go:3\n",
	}))

	event := q.pushed()[0].Event
	assert.Equal(t, []aisen.Frame{{Function: "main.run", File: "/app/main.go", Line: 9}}, event.Frames)
	assert.Empty(t, event.StackTrace, "raw stack is discarded once frames are filtered")
}

func TestAgent_Record_CallbackPanicDropsEvent(t *testing.T) {
	logger := &captureLogger{}
	a, q := newTestAgent(t, Config{Logger: logger})
	a.Callbacks().SetExceptionFilter(func(*aisen.ErrorEvent) bool { panic("filter bug") })

	assert.NotPanics(t, func() {
		assert.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{}))
	})
	assert.Empty(t, q.pushed())
	assert.True(t, logger.has("error", "callback"), logger.String())
}

func TestAgent_Record_Scrubs(t *testing.T) {
	a, q := newTestAgent(t, Config{Scrub: true})

	require.NoError(t, a.Record(context.Background(), aisen.ErrorEvent{
		Message:  "login failed for user@example.com",
		Metadata: map[string]string{"password": "hunter2"},
	}))

	event := q.pushed()[0].Event
	assert.NotContains(t, event.Message, "user@example.com")
	assert.Equal(t, "[REDACTED]", event.Metadata["password"])
}

func TestAgent_Record_ContextEnrichment(t *testing.T) {
	a, q := newTestAgent(t, Config{})

	ctx := aisen.WithContextID(context.Background(), 77)
	ctx = aisen.WithTags(ctx, "checkout")
	ctx = aisen.WithMetadata(ctx, map[string]string{"tenant": "acme"})
	require.NoError(t, a.Record(ctx, aisen.ErrorEvent{}))

	event := q.pushed()[0].Event
	require.NotNil(t, event.ContextID)
	assert.Equal(t, uint64(77), *event.ContextID)
	assert.Equal(t, []string{"checkout"}, event.Tags)
	assert.Equal(t, "acme", event.Metadata["tenant"])
}

func TestAgent_Record_QueueRejects(t *testing.T) {
	a, q := newTestAgent(t, Config{})
	q.reject = true

	assert.ErrorIs(t, a.Record(context.Background(), aisen.ErrorEvent{}), ErrNoticeDropped)
}

func TestAgent_Record_AfterStop(t *testing.T) {
	a, q := newTestAgent(t, Config{})
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Record(context.Background(), aisen.ErrorEvent{}), ErrAgentStopped)
	assert.Empty(t, q.pushed())
}

func TestAgent_NilAgent(t *testing.T) {
	var a *Agent

	assert.ErrorIs(t, a.Record(context.Background(), aisen.ErrorEvent{}), ErrNotStarted)
	assert.ErrorIs(t, a.Notify(context.Background(), errors.New("boom")), ErrNotStarted)
	assert.ErrorIs(t, a.Flush(context.Background()), ErrNotStarted)
	assert.NoError(t, a.Close())
}

func TestAgent_Notify(t *testing.T) {
	a, q := newTestAgent(t, Config{})

	err := a.Notify(context.Background(), errors.New("payment declined"),
		WithTags("billing"),
		WithMetadata(map[string]string{"order": "o-1"}),
		WithSeverity(aisen.SeverityWarning),
		WithErrorClass("PaymentError"),
	)
	require.NoError(t, err)

	event := q.pushed()[0].Event
	assert.Equal(t, "payment declined", event.Message)
	assert.Equal(t, "PaymentError", event.ErrorType)
	assert.Equal(t, aisen.SeverityWarning, event.Severity)
	assert.Equal(t, []string{"billing"}, event.Tags)
	assert.Equal(t, "o-1", event.Metadata["order"])
	require.NotEmpty(t, event.Frames)
	assert.Contains(t, event.Frames[0].Function, "TestAgent_Notify", "capture frames are trimmed")
}

func TestAgent_Recover_RecordsPanic(t *testing.T) {
	a, q := newTestAgent(t, Config{})

	func() {
		defer aisen.Recover(context.Background(), a)
		panic("worker crashed")
	}()

	jobs := q.pushed()
	require.Len(t, jobs, 1)
	assert.Equal(t, aisen.SeverityCrash, jobs[0].Event.Severity)
	assert.Equal(t, "worker crashed", jobs[0].Event.Message)
}

func TestAgent_EndToEnd_DeliversThroughWorker(t *testing.T) {
	backend := recording.New()
	r := testRegistry(t)
	cfg := validConfig(&captureLogger{}, backend)
	cfg.InitialBackoff = time.Millisecond
	require.True(t, r.Start(FromConfig(cfg)))

	backend.Respond(aisen.ResponseFor(503, nil))
	require.NoError(t, r.Notify(context.Background(), errors.New("first")))
	require.NoError(t, r.Notify(context.Background(), errors.New("second")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))

	var messages []string
	for _, e := range backend.Events() {
		messages = append(messages, e.Message)
	}
	assert.ElementsMatch(t, []string{"first", "second"}, messages)
	assert.Equal(t, 3, backend.Attempts())
}
