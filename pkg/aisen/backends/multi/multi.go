// Package multi provides a backend that fans out to multiple backends.
// All backends receive all events concurrently; outcomes are aggregated.
package multi

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// Backend fans out to multiple backends.
type Backend struct {
	backends []aisen.Backend
}

var _ aisen.Backend = (*Backend)(nil)

// New creates a backend that delivers to every given backend.
func New(backends ...aisen.Backend) *Backend {
	return &Backend{backends: backends}
}

// Ping checks every backend concurrently and returns the first failure.
func (b *Backend) Ping(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, backend := range b.backends {
		g.Go(func() error {
			return backend.Ping(ctx)
		})
	}
	return g.Wait()
}

// Deliver sends the event to all backends concurrently. The event counts as
// delivered only when every backend accepted it, and is retryable when any
// failure is. A retry redelivers to every backend, so members should
// deduplicate on EventID.
func (b *Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	responses := make([]aisen.Response, len(b.backends))

	var g errgroup.Group
	for i, backend := range b.backends {
		g.Go(func() error {
			responses[i] = backend.Deliver(ctx, event)
			return nil
		})
	}
	_ = g.Wait()

	return merge(responses)
}

// merge aggregates per-backend responses.
func merge(responses []aisen.Response) aisen.Response {
	merged := aisen.Response{Delivered: true}
	var errs []error
	for _, resp := range responses {
		if resp.Delivered {
			continue
		}
		if merged.Delivered {
			merged.StatusCode = resp.StatusCode
		}
		merged.Delivered = false
		merged.Retryable = merged.Retryable || resp.Retryable
		merged.RetryAfter = max(merged.RetryAfter, resp.RetryAfter)
		if resp.Err != nil {
			errs = append(errs, resp.Err)
		}
	}
	merged.Err = errors.Join(errs...)
	return merged
}
