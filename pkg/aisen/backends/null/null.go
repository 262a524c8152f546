// Package null provides a backend that discards all events.
// Useful for disabling delivery without disabling the agent.
package null

import (
	"context"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// Backend discards all events.
type Backend struct{}

var _ aisen.Backend = Backend{}

// New creates a backend that discards all events.
func New() Backend {
	return Backend{}
}

// Ping always succeeds.
func (Backend) Ping(ctx context.Context) error {
	return nil
}

// Deliver discards the event and reports it delivered.
func (Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	return aisen.Response{Delivered: true}
}
