// Package worker delivers error events in the background through a bounded
// queue. Push returns immediately; a single consumer goroutine drains the
// queue in FIFO order, retries transient failures with backoff, and drops
// events that fail fatally or exhaust their retry budget.
package worker

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// ErrWorkerStopped is returned by Flush once the worker has stopped.
var ErrWorkerStopped = errors.New("aisen: worker stopped")

// Queue is the capability the agent needs from a delivery engine.
type Queue interface {
	// Push enqueues a job without blocking beyond a short bounded wait.
	// It reports whether the job was accepted.
	Push(job Job) bool

	// Start begins draining the queue. Calling Start twice is a no-op.
	Start()

	// Stop drains pending work for at most flushTimeout, abandons the
	// rest, and joins the background goroutine. Idempotent.
	Stop(flushTimeout time.Duration)

	// Flush blocks until nothing is queued, in flight, or awaiting retry.
	Flush(ctx context.Context) error
}

// OverflowPolicy selects which job is discarded when the queue is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest queued job to admit the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest rejects the incoming job.
	DropNewest
)

// String returns the policy name used in configuration.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseOverflowPolicy parses "drop_oldest" or "drop_newest" (case and
// dash/underscore insensitive). The empty string means DropOldest.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case "", "drop_oldest", "oldest":
		return DropOldest, nil
	case "drop_newest", "newest":
		return DropNewest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy: %q", name)
	}
}

// Config controls queueing and retry behavior.
type Config struct {
	// QueueSize bounds the number of queued (not yet attempted) jobs.
	QueueSize int

	// Overflow selects the job to discard when the queue is full.
	Overflow OverflowPolicy

	// PushTimeout is how long Push may wait for room before applying the
	// overflow policy. Zero applies it immediately.
	PushTimeout time.Duration

	// MaxAttempts bounds delivery attempts per job.
	MaxAttempts int

	// MaxElapsed bounds the time from job creation to its last attempt.
	// Zero disables the bound.
	MaxElapsed time.Duration

	// DeliverTimeout bounds a single delivery attempt.
	DeliverTimeout time.Duration

	// Backoff computes the delay between attempts.
	Backoff Backoff
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:      100,
		Overflow:       DropOldest,
		PushTimeout:    10 * time.Millisecond,
		MaxAttempts:    8,
		MaxElapsed:     5 * time.Minute,
		DeliverTimeout: 10 * time.Second,
		Backoff:        DefaultBackoff,
	}
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger for delivery outcomes.
func WithLogger(logger aisen.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOnDelivered sets a callback invoked after a job is delivered.
func WithOnDelivered(fn func(job Job)) Option {
	return func(w *Worker) {
		w.onDelivered = fn
	}
}

// WithOnRetry sets a callback invoked when a job is scheduled for retry,
// with the delay before its next attempt.
func WithOnRetry(fn func(job Job, delay time.Duration)) Option {
	return func(w *Worker) {
		w.onRetry = fn
	}
}

// WithOnDropped sets a callback invoked when a job is dropped.
func WithOnDropped(fn func(job Job, reason DropReason)) Option {
	return func(w *Worker) {
		w.onDropped = fn
	}
}

// Worker is the default Queue implementation. The buffer is guarded by a
// mutex so any number of goroutines may Push; one goroutine delivers.
type Worker struct {
	backend aisen.Backend
	cfg     Config
	logger  aisen.Logger
	now     func() time.Time

	onDelivered func(Job)
	onRetry     func(Job, time.Duration)
	onDropped   func(Job, DropReason)

	mu       sync.Mutex
	queue    []*Job
	retries  retryHeap
	inFlight int
	started  bool
	stopping bool
	space    chan struct{} // closed and replaced whenever a queue slot frees
	wake     chan struct{}

	ctx      context.Context // canceled when remaining work is abandoned
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

var _ Queue = (*Worker)(nil)

// New creates a worker delivering through backend. Call Start to begin
// draining; jobs pushed before Start wait in the queue.
func New(backend aisen.Backend, cfg Config, opts ...Option) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = DefaultConfig().DeliverTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		backend: backend,
		cfg:     cfg,
		logger:  aisen.NopLogger{},
		now:     time.Now,
		queue:   make([]*Job, 0, cfg.QueueSize),
		space:   make(chan struct{}),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start spawns the delivery goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopping {
		return
	}
	w.started = true
	go w.run()
}

// Push enqueues job. When the queue is full it waits up to PushTimeout for
// room, then applies the overflow policy. It reports whether job was
// accepted; with DropOldest an older job is evicted instead.
func (w *Worker) Push(job Job) bool {
	queued := job
	queued.State = StatePending
	queued.index = -1
	if queued.CreatedAt.IsZero() {
		queued.CreatedAt = w.now()
	}

	deadline := time.Now().Add(w.cfg.PushTimeout)

	w.mu.Lock()
	for {
		if w.stopping {
			w.mu.Unlock()
			w.logger.Debug("notice pushed after stop, dropping", "event_id", queued.Event.EventID)
			w.drop(&queued, DropStopped)
			return false
		}
		if len(w.queue) < w.cfg.QueueSize {
			w.enqueueLocked(&queued)
			w.mu.Unlock()
			w.signal()
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		space := w.space
		w.mu.Unlock()
		timer := time.NewTimer(remaining)
		select {
		case <-space:
		case <-timer.C:
		}
		timer.Stop()
		w.mu.Lock()
	}

	var evicted *Job
	accepted := false
	switch w.cfg.Overflow {
	case DropNewest:
		evicted = &queued
	default:
		evicted = w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		QueueDepth.Dec()
		w.enqueueLocked(&queued)
		accepted = true
	}
	w.mu.Unlock()

	w.logger.Warn("queue full, dropping notice",
		"policy", w.cfg.Overflow.String(),
		"queue_size", w.cfg.QueueSize,
		"event_id", evicted.Event.EventID)
	w.drop(evicted, DropQueueFull)
	if accepted {
		w.signal()
	}
	return accepted
}

func (w *Worker) enqueueLocked(job *Job) {
	w.queue = append(w.queue, job)
	NoticesPushed.Inc()
	QueueDepth.Inc()
}

// signal wakes the delivery goroutine without blocking.
func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of jobs queued, in flight, or awaiting retry.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) + len(w.retries) + w.inFlight
}

// Flush blocks until all pending jobs are delivered or dropped.
func (w *Worker) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if w.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			if w.Pending() == 0 {
				return nil
			}
			return ErrWorkerStopped
		case <-ticker.C:
		}
	}
}

// Stop stops intake, lets the delivery goroutine drain for at most
// flushTimeout, then cancels in-flight delivery and abandons what is left.
// A backend that ignores cancellation gets a short grace period; after that
// Stop returns and the goroutine exits once Deliver does. Concurrent and
// repeated calls all return once the first call has.
func (w *Worker) Stop(flushTimeout time.Duration) {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopping = true
		started := w.started
		w.mu.Unlock()

		if !started {
			w.cancel()
			w.abandon()
			close(w.done)
			return
		}

		w.signal()
		timer := time.NewTimer(flushTimeout)
		defer timer.Stop()
		select {
		case <-w.done:
		case <-timer.C:
			w.logger.Warn("flush timeout exceeded, abandoning remaining notices",
				"flush_timeout", flushTimeout,
				"pending", w.Pending())
			w.cancel()

			grace := time.NewTimer(w.abandonGrace())
			defer grace.Stop()
			select {
			case <-w.done:
			case <-grace.C:
				w.logger.Warn("in-flight delivery ignored cancellation, leaving it to finish in the background",
					"grace", w.abandonGrace())
			}
		}
		w.cancel()
	})
}

// maxAbandonGrace caps how long Stop waits for a canceled delivery to return.
const maxAbandonGrace = time.Second

// abandonGrace is how long Stop waits, after canceling, for the delivery
// goroutine to exit.
func (w *Worker) abandonGrace() time.Duration {
	return min(w.cfg.DeliverTimeout, maxAbandonGrace)
}

// run is the delivery loop.
func (w *Worker) run() {
	defer close(w.done)
	for {
		job, wait, more := w.next()
		if job != nil {
			w.process(job)
			continue
		}
		if !more {
			w.abandon()
			return
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-w.wake:
		case <-timerC:
		case <-w.ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next picks the next job to attempt: a retry whose time has come, else the
// head of the queue. Without a job it returns how long to wait (0 means
// until woken) and whether the loop should keep running.
func (w *Worker) next() (*Job, time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return nil, 0, false
	}

	now := w.now()
	if len(w.retries) > 0 && !w.retries[0].nextAttempt.After(now) {
		job := heap.Pop(&w.retries).(*Job)
		w.inFlight++
		return job, 0, true
	}

	if len(w.queue) > 0 {
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.inFlight++
		close(w.space)
		w.space = make(chan struct{})
		return job, 0, true
	}

	if len(w.retries) > 0 {
		return nil, w.retries[0].nextAttempt.Sub(now), true
	}

	return nil, 0, !w.stopping
}

// process runs one attempt for job and settles it. Failures, including
// panics in the backend, never escape. The job counts as in flight until it
// is settled, so Flush never observes a retry in transit as idle.
func (w *Worker) process(job *Job) {
	defer func() {
		w.mu.Lock()
		w.inFlight--
		w.mu.Unlock()
	}()

	job.State = StateInFlight
	job.Attempts++
	QueueDepth.Dec()

	resp, panicked := w.attempt(job)

	switch {
	case panicked:
		job.LastErr = resp.Err
		w.drop(job, DropPanic)
	case resp.Delivered:
		job.State = StateDelivered
		job.LastErr = nil
		job.LastStatus = resp.StatusCode
		NoticesDelivered.Inc()
		w.logger.Debug("notice delivered",
			"event_id", job.Event.EventID,
			"attempts", job.Attempts,
			"status", resp.StatusCode)
		w.callback(func() {
			if w.onDelivered != nil {
				w.onDelivered(*job)
			}
		})
	case !resp.Retryable:
		job.LastErr = resp.Err
		job.LastStatus = resp.StatusCode
		w.drop(job, DropFatal)
	default:
		job.LastErr = resp.Err
		job.LastStatus = resp.StatusCode
		w.retry(job, resp.RetryAfter)
	}
}

// attempt performs the backend call under the per-attempt timeout.
func (w *Worker) attempt(job *Job) (resp aisen.Response, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while delivering notice",
				"event_id", job.Event.EventID,
				"panic", r)
			resp = aisen.Fatal(fmt.Errorf("panic during delivery: %v", r))
			panicked = true
		}
	}()

	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.DeliverTimeout)
	defer cancel()

	start := time.Now()
	resp = w.backend.Deliver(ctx, job.Event)
	DeliveryLatency.WithLabelValues(resp.Outcome().String()).Observe(time.Since(start).Seconds())
	return resp, false
}

// retry schedules the next attempt or drops the job when a bound is hit.
func (w *Worker) retry(job *Job, hint time.Duration) {
	if w.ctx.Err() != nil {
		w.logger.Warn("in-flight notice dropped at shutdown",
			"event_id", job.Event.EventID,
			"attempts", job.Attempts,
			"status", job.LastStatus,
			"error", job.LastErr)
		w.drop(job, DropShutdown)
		return
	}
	if job.Attempts >= w.cfg.MaxAttempts {
		w.drop(job, DropMaxAttempts)
		return
	}

	delay := max(w.cfg.Backoff.Delay(job.Attempts), hint)
	now := w.now()
	if w.cfg.MaxElapsed > 0 && now.Add(delay).Sub(job.CreatedAt) > w.cfg.MaxElapsed {
		w.drop(job, DropMaxElapsed)
		return
	}

	job.State = StateRetrying
	job.nextAttempt = now.Add(delay)

	w.mu.Lock()
	heap.Push(&w.retries, job)
	w.mu.Unlock()
	QueueDepth.Inc()
	NoticesRetried.Inc()

	w.logger.Debug("notice delivery failed, retrying",
		"event_id", job.Event.EventID,
		"attempts", job.Attempts,
		"status", job.LastStatus,
		"delay", delay,
		"error", job.LastErr)
	w.callback(func() {
		if w.onRetry != nil {
			w.onRetry(*job, delay)
		}
	})
}

// drop marks job dropped, logs the reason, and notifies.
func (w *Worker) drop(job *Job, reason DropReason) {
	job.State = StateDropped
	NoticesDropped.WithLabelValues(string(reason)).Inc()

	switch reason {
	case DropQueueFull, DropStopped, DropShutdown:
		// Logged by the caller, once per event or once per batch.
	default:
		w.logger.Warn("notice dropped",
			"reason", string(reason),
			"event_id", job.Event.EventID,
			"attempts", job.Attempts,
			"status", job.LastStatus,
			"error", job.LastErr)
	}

	w.callback(func() {
		if w.onDropped != nil {
			w.onDropped(*job, reason)
		}
	})
}

// abandon drops everything still queued or waiting for retry.
func (w *Worker) abandon() {
	w.mu.Lock()
	remaining := make([]*Job, 0, len(w.queue)+len(w.retries))
	remaining = append(remaining, w.queue...)
	remaining = append(remaining, w.retries...)
	w.queue = nil
	w.retries = nil
	w.mu.Unlock()

	if len(remaining) == 0 {
		return
	}
	QueueDepth.Sub(float64(len(remaining)))
	w.logger.Warn("abandoning undelivered notices at shutdown", "count", len(remaining))
	for _, job := range remaining {
		w.drop(job, DropShutdown)
	}
}

// callback runs a user hook, containing any panic.
func (w *Worker) callback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in worker callback", "panic", r)
		}
	}()
	fn()
}
