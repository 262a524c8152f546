// collector.go provides the Collector interface and event preparation shared
// by every reporting entry point.

package aisen

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Collector records error events. The agent's active instance implements
// it; adapters and Recover depend only on this interface.
type Collector interface {
	// Record captures an error event. It returns once the event is queued
	// (or filtered); delivery happens asynchronously.
	Record(ctx context.Context, event ErrorEvent) error

	// Flush blocks until queued events are delivered or dropped, or ctx
	// is done.
	Flush(ctx context.Context) error

	// Close releases resources held by the collector.
	Close() error
}

// Prepare fills the identity and context fields of an event that the
// reporter left unset: EventID, Timestamp, Frames, and the context id,
// metadata, and tags carried by ctx. Explicit event values win over
// context values.
func Prepare(ctx context.Context, event *ErrorEvent, now time.Time) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if len(event.Frames) == 0 && event.StackTrace != "" {
		event.Frames = ParseStackTrace(event.StackTrace)
	}
	if ctx == nil {
		return
	}

	if event.ContextID == nil {
		if contextID, ok := ContextIDFromContext(ctx); ok {
			event.ContextID = &contextID
		}
	}

	if meta := MetadataFromContext(ctx); len(meta) > 0 {
		merged := maps.Clone(meta)
		maps.Copy(merged, event.Metadata)
		event.Metadata = merged
	}

	if tags := TagsFromContext(ctx); len(tags) > 0 {
		for _, tag := range tags {
			if !slices.Contains(event.Tags, tag) {
				event.Tags = append(event.Tags, tag)
			}
		}
	}
}
