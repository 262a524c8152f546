package agent

import (
	"fmt"
	"sync"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// ExceptionFilterFunc decides whether an event is suppressed. Returning
// true drops the event before it is queued.
type ExceptionFilterFunc func(event *aisen.ErrorEvent) bool

// ExceptionFingerprintFunc computes the grouping key for an event. An empty
// result falls back to aisen.Fingerprint.
type ExceptionFingerprintFunc func(event *aisen.ErrorEvent) string

// BacktraceFilterFunc transforms the parsed frames of an event, typically to
// redact or trim them.
type BacktraceFilterFunc func(frames []aisen.Frame) []aisen.Frame

// CallbackChain holds the three hooks applied to every event before it is
// queued. Each slot holds at most one function; setting a slot replaces
// what was there.
//
// Slots are meant to be set during initialization, before reporting
// starts. The lock only keeps concurrent access memory-safe.
type CallbackChain struct {
	mu                   sync.RWMutex
	exceptionFilter      ExceptionFilterFunc
	exceptionFingerprint ExceptionFingerprintFunc
	backtraceFilter      BacktraceFilterFunc
}

// NewCallbackChain returns a chain with every slot empty.
func NewCallbackChain() *CallbackChain {
	return &CallbackChain{}
}

// SetExceptionFilter replaces the exception filter. nil clears the slot.
func (c *CallbackChain) SetExceptionFilter(fn ExceptionFilterFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exceptionFilter = fn
}

// ExceptionFilter returns the current exception filter, or nil.
func (c *CallbackChain) ExceptionFilter() ExceptionFilterFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exceptionFilter
}

// SetExceptionFingerprint replaces the fingerprint callback.
func (c *CallbackChain) SetExceptionFingerprint(fn ExceptionFingerprintFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exceptionFingerprint = fn
}

// ExceptionFingerprint returns the current fingerprint callback, or nil.
func (c *CallbackChain) ExceptionFingerprint() ExceptionFingerprintFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exceptionFingerprint
}

// SetBacktraceFilter replaces the backtrace filter.
func (c *CallbackChain) SetBacktraceFilter(fn BacktraceFilterFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backtraceFilter = fn
}

// BacktraceFilter returns the current backtrace filter, or nil.
func (c *CallbackChain) BacktraceFilter() BacktraceFilterFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backtraceFilter
}

// CallbackPanicError reports a callback that panicked while processing an
// event.
type CallbackPanicError struct {
	Slot  string
	Value any
}

func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("aisen: %s callback panicked: %v", e.Slot, e.Value)
}

// Apply runs the chain in order: backtrace filter, exception filter, then
// fingerprint. It reports keep=false when the exception filter suppressed
// the event. A panicking callback yields a *CallbackPanicError and
// keep=false.
//
// When a backtrace filter is set, the raw stack text is discarded so the
// filtered frames are the only backtrace that leaves the process.
func (c *CallbackChain) Apply(event aisen.ErrorEvent) (out aisen.ErrorEvent, keep bool, err error) {
	c.mu.RLock()
	backtraceFilter := c.backtraceFilter
	exceptionFilter := c.exceptionFilter
	fingerprint := c.exceptionFingerprint
	c.mu.RUnlock()

	slot := ""
	defer func() {
		if r := recover(); r != nil {
			out, keep, err = event, false, &CallbackPanicError{Slot: slot, Value: r}
		}
	}()

	if backtraceFilter != nil {
		slot = "backtrace_filter"
		event.Frames = backtraceFilter(event.Frames)
		event.StackTrace = ""
	}

	if exceptionFilter != nil {
		slot = "exception_filter"
		if exceptionFilter(&event) {
			return event, false, nil
		}
	}

	if fingerprint != nil {
		slot = "exception_fingerprint"
		if fp := fingerprint(&event); fp != "" {
			event.Fingerprint = fp
		}
	}
	if event.Fingerprint == "" {
		event.Fingerprint = aisen.Fingerprint(event)
	}

	return event, true, nil
}
