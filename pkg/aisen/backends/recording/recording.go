// Package recording provides an in-memory backend for tests. It records
// every ping and delivered event and can be scripted to fail.
package recording

import (
	"context"
	"slices"
	"sync"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// Backend records pings and deliveries. By default every ping and
// delivery succeeds.
type Backend struct {
	mu        sync.Mutex
	pings     int
	events    []aisen.ErrorEvent
	attempts  int
	pingErr   error
	responses []aisen.Response
}

var _ aisen.Backend = (*Backend)(nil)

// New creates an empty recording backend.
func New() *Backend {
	return &Backend{}
}

// FailPing makes subsequent pings return err. A nil err restores success.
func (b *Backend) FailPing(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pingErr = err
}

// Respond queues responses returned by the next deliveries, in order.
// Once the queue is exhausted deliveries succeed again.
func (b *Backend) Respond(responses ...aisen.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, responses...)
}

// Ping records the handshake.
func (b *Backend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	return b.pingErr
}

// Deliver records the event when the scripted response is a success.
func (b *Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++

	resp := aisen.Response{Delivered: true}
	if len(b.responses) > 0 {
		resp = b.responses[0]
		b.responses = b.responses[1:]
	}
	if resp.Delivered {
		b.events = append(b.events, event)
	}
	return resp
}

// Pings returns the number of handshakes performed.
func (b *Backend) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

// Attempts returns the number of delivery attempts, successful or not.
func (b *Backend) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Events returns a copy of the delivered events in delivery order.
func (b *Backend) Events() []aisen.ErrorEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

// Reset clears recorded state and scripted responses.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings = 0
	b.attempts = 0
	b.events = nil
	b.pingErr = nil
	b.responses = nil
}
