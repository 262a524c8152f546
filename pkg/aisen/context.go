// context.go provides utilities for propagating run IDs, cxdb context IDs,
// and per-request reporting context through Go context.Context.

package aisen

import (
	"context"
	"maps"
	"slices"
)

// Context key types (unexported to avoid collisions)
type runIDKey struct{}
type contextIDKey struct{}
type metadataKey struct{}
type tagsKey struct{}

// contextIDSet is used to distinguish "zero value" from "not set"
type contextIDSet struct {
	id uint64
}

// WithRunID returns a context with the run ID attached.
// The run ID is used to correlate hook enrichment with runner-boundary errors.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run ID from context.
// Returns empty string and false if not set or if the run ID is empty.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(runIDKey{})
	id, ok := v.(string)
	return id, ok && id != ""
}

// WithContextID returns a context with the cxdb context ID attached.
// This allows errors to be linked to conversation context.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextIDSet{id: contextID})
}

// ContextIDFromContext extracts the cxdb context ID from context.
// Returns 0 and false if not set.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	set, ok := ctx.Value(contextIDKey{}).(contextIDSet)
	if !ok {
		return 0, false
	}
	return set.id, true
}

// ContextIDProvider is an optional interface that session implementations can
// satisfy to enable automatic context linkage for error events.
type ContextIDProvider interface {
	ContextID(ctx context.Context) (uint64, error)
}

// WithMetadata returns a context carrying metadata that is merged into every
// event reported with it. Nested calls accumulate; inner keys win.
func WithMetadata(ctx context.Context, meta map[string]string) context.Context {
	merged := maps.Clone(MetadataFromContext(ctx))
	if merged == nil {
		merged = make(map[string]string, len(meta))
	}
	maps.Copy(merged, meta)
	return context.WithValue(ctx, metadataKey{}, merged)
}

// MetadataFromContext returns the metadata attached with WithMetadata.
// The returned map must not be modified.
func MetadataFromContext(ctx context.Context) map[string]string {
	meta, _ := ctx.Value(metadataKey{}).(map[string]string)
	return meta
}

// WithTags returns a context carrying tags added to every event reported
// with it.
func WithTags(ctx context.Context, tags ...string) context.Context {
	merged := slices.Clone(TagsFromContext(ctx))
	for _, tag := range tags {
		if tag != "" && !slices.Contains(merged, tag) {
			merged = append(merged, tag)
		}
	}
	return context.WithValue(ctx, tagsKey{}, merged)
}

// TagsFromContext returns the tags attached with WithTags.
func TagsFromContext(ctx context.Context) []string {
	tags, _ := ctx.Value(tagsKey{}).([]string)
	return tags
}
