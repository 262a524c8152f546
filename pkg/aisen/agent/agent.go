package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/worker"
)

var (
	// ErrAgentStopped is returned by Record and Notify after the agent
	// was stopped.
	ErrAgentStopped = errors.New("aisen: agent stopped")

	// ErrNotStarted is returned when no agent is active.
	ErrNotStarted = errors.New("aisen: agent not started")

	// ErrNoticeDropped is returned by Record when the worker refused the
	// event.
	ErrNoticeDropped = errors.New("aisen: notice dropped")
)

// Agent is an active reporting pipeline: a Config snapshot, the shared
// callback chain, and the worker delivering through the backend. Agents
// are created by a Registry; use Registry.Start rather than New in
// application code.
type Agent struct {
	cfg       Config
	callbacks *CallbackChain
	queue     worker.Queue
	backend   aisen.Backend
	logger    aisen.Logger
	scrubber  *aisen.Scrubber
	startTime time.Time
	now       func() time.Time
	stopped   atomic.Bool
}

var _ aisen.Collector = (*Agent)(nil)

// New builds an agent around a started-or-not queue. The queue is started
// by the Registry once the agent is about to be published.
func New(cfg Config, callbacks *CallbackChain, queue worker.Queue) *Agent {
	if callbacks == nil {
		callbacks = NewCallbackChain()
	}
	a := &Agent{
		cfg:       cfg,
		callbacks: callbacks,
		queue:     queue,
		backend:   cfg.backend(),
		logger:    cfg.logger(),
		startTime: time.Now(),
		now:       time.Now,
	}
	if cfg.Scrub {
		a.scrubber = aisen.NewScrubber(aisen.DefaultScrubberConfig())
	}
	return a
}

// Config returns the agent's configuration snapshot.
func (a *Agent) Config() Config {
	return a.cfg
}

// Worker returns the delivery queue.
func (a *Agent) Worker() worker.Queue {
	return a.queue
}

// Backend returns the transport events are delivered through.
func (a *Agent) Backend() aisen.Backend {
	return a.backend
}

// Callbacks returns the callback chain applied to every event.
func (a *Agent) Callbacks() *CallbackChain {
	return a.callbacks
}

// Record runs an event through the pipeline and queues it for delivery:
// identity and context fields, environment and host state, optional
// scrubbing, then the callback chain. It returns once the event is queued
// or filtered and never panics.
func (a *Agent) Record(ctx context.Context, event aisen.ErrorEvent) (err error) {
	if a == nil {
		return ErrNotStarted
	}
	if a.stopped.Load() {
		return ErrAgentStopped
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while recording notice", "panic", r)
			err = fmt.Errorf("aisen: record panicked: %v", r)
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	now := a.now()
	aisen.Prepare(ctx, &event, now)

	if event.Environment == "" {
		event.Environment = a.cfg.Environment
	}
	if event.SystemState == nil {
		event.SystemState = aisen.CaptureSystemState(a.startTime)
		if a.cfg.Hostname != "" {
			event.SystemState.HostName = a.cfg.Hostname
		}
	}
	if a.scrubber != nil {
		event = a.scrubber.ScrubEvent(event)
	}

	event, keep, err := a.callbacks.Apply(event)
	if err != nil {
		a.logger.Error("callback failed, dropping notice", "event_id", event.EventID, "error", err)
		return nil
	}
	if !keep {
		a.logger.Debug("notice suppressed by exception filter", "event_id", event.EventID)
		return nil
	}

	if !a.queue.Push(worker.NewJob(event, now)) {
		return ErrNoticeDropped
	}
	return nil
}

// NotifyOption adjusts an event built by Notify.
type NotifyOption func(*aisen.ErrorEvent)

// WithTags adds tags to the notice.
func WithTags(tags ...string) NotifyOption {
	return func(e *aisen.ErrorEvent) {
		e.Tags = append(e.Tags, tags...)
	}
}

// WithMetadata merges key-value pairs into the notice metadata.
func WithMetadata(meta map[string]string) NotifyOption {
	return func(e *aisen.ErrorEvent) {
		if len(meta) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			e.Metadata[k] = v
		}
	}
}

// WithSeverity overrides the default error severity.
func WithSeverity(severity aisen.Severity) NotifyOption {
	return func(e *aisen.ErrorEvent) {
		e.Severity = severity
	}
}

// WithErrorClass overrides the class derived from the error's type.
func WithErrorClass(class string) NotifyOption {
	return func(e *aisen.ErrorEvent) {
		if class != "" {
			e.ErrorType = class
		}
	}
}

// WithFingerprint sets an explicit grouping key. An exception fingerprint
// callback still takes precedence.
func WithFingerprint(fingerprint string) NotifyOption {
	return func(e *aisen.ErrorEvent) {
		e.Fingerprint = fingerprint
	}
}

// Notify reports err with the caller's stack.
func (a *Agent) Notify(ctx context.Context, err error, opts ...NotifyOption) error {
	if a == nil {
		return ErrNotStarted
	}
	event := aisen.NewErrorEvent(err)
	for _, opt := range opts {
		opt(&event)
	}
	return a.Record(ctx, event)
}

// Flush blocks until every queued event is delivered or dropped.
func (a *Agent) Flush(ctx context.Context) error {
	if a == nil {
		return ErrNotStarted
	}
	return a.queue.Flush(ctx)
}

// Close stops the agent's worker. An agent published in a Registry should
// be stopped through Registry.Stop so the handle is released too.
func (a *Agent) Close() error {
	if a == nil {
		return nil
	}
	a.stop()
	return nil
}

// start begins background delivery.
func (a *Agent) start() {
	a.queue.Start()
}

// stop ends intake and stops the worker within FlushTimeout.
func (a *Agent) stop() {
	if a.stopped.Swap(true) {
		return
	}
	a.queue.Stop(a.cfg.FlushTimeout)
}
