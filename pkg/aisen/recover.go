// recover.go provides the Recover helper for standalone panic recovery.
// Use this in HTTP handlers, goroutines, or other code outside of Runner.

package aisen

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Recover captures a panic, records it to the collector, and returns the
// recovered value. It does NOT re-panic after recording.
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer aisen.Recover(ctx, agent.Instance())
//	    // code that might panic
//	}
//
// A nil collector still recovers the panic; nothing is recorded.
func Recover(ctx context.Context, collector Collector) any {
	r := recover()
	if r == nil {
		return nil
	}
	if collector == nil {
		return r
	}

	event := PanicEvent(r, debug.Stack())
	if ctx == nil {
		ctx = context.Background()
	}
	Prepare(ctx, &event, time.Now())

	// Record errors are ignored; the caller's recovery must not fail.
	_ = collector.Record(ctx, event)

	return r
}

// PanicEvent builds a crash-severity event from a recovered panic value and
// the stack captured inside the deferred function.
func PanicEvent(recovered any, stack []byte) ErrorEvent {
	trace := string(stack)
	return ErrorEvent{
		Severity:   SeverityCrash,
		ErrorType:  "panic",
		Message:    formatRecovered(recovered),
		StackTrace: trace,
		Frames:     ParseStackTrace(trace),
	}
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
