// Package debug provides a backend that prints errors in human-readable
// format. Useful for development, optionally in front of a real backend.
package debug

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// Option configures the debug backend.
type Option func(*Backend)

// WithVerbose enables full error details including stack traces.
func WithVerbose() Option {
	return func(b *Backend) {
		b.verbose = true
	}
}

// WithWriter sets the destination. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(b *Backend) {
		if w != nil {
			b.out = w
		}
	}
}

// WithInner forwards every ping and delivery to inner after printing. The
// inner backend's outcome is returned.
func WithInner(inner aisen.Backend) Option {
	return func(b *Backend) {
		b.inner = inner
	}
}

// Backend writes events in human-readable format.
type Backend struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	inner   aisen.Backend
}

var _ aisen.Backend = (*Backend)(nil)

// New creates a debug backend writing to stderr.
func New(opts ...Option) *Backend {
	b := &Backend{out: os.Stderr}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ping delegates to the inner backend, if any.
func (b *Backend) Ping(ctx context.Context) error {
	if b.inner != nil {
		return b.inner.Ping(ctx)
	}
	return nil
}

// Deliver prints the event, then delegates to the inner backend, if any.
func (b *Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	b.print(event)
	if b.inner != nil {
		return b.inner.Deliver(ctx, event)
	}
	return aisen.Response{Delivered: true}
}

func (b *Backend) print(event aisen.ErrorEvent) {
	var sb strings.Builder

	// Format: [AISEN] <timestamp> <SEVERITY> <error_type> in <operation> <tool_name> (agent: <agent_name>)
	severity := strings.ToUpper(string(event.Severity))
	timestamp := event.Timestamp.Format("2006-01-02T15:04:05Z07:00")

	parts := []string{fmt.Sprintf("[AISEN] %s %s %s", timestamp, severity, event.ErrorType)}
	if event.Operation != "" {
		parts = append(parts, fmt.Sprintf("in %s", event.Operation))
	}
	if event.ToolName != "" {
		parts = append(parts, event.ToolName)
	}
	if event.AgentName != "" {
		parts = append(parts, fmt.Sprintf("(agent: %s)", event.AgentName))
	}
	sb.WriteString(strings.Join(parts, " "))
	sb.WriteString("\n")

	if event.Message != "" {
		fmt.Fprintf(&sb, "        Message: %s\n", event.Message)
	}
	if event.Fingerprint != "" {
		fmt.Fprintf(&sb, "        Fingerprint: %s\n", event.Fingerprint)
	}
	if event.Environment != "" {
		fmt.Fprintf(&sb, "        Environment: %s\n", event.Environment)
	}
	if len(event.Tags) > 0 {
		fmt.Fprintf(&sb, "        Tags: %s\n", strings.Join(event.Tags, ", "))
	}

	if event.ContextID != nil {
		if event.TurnDepth != nil {
			fmt.Fprintf(&sb, "        Context: %d (turn %d)\n", *event.ContextID, *event.TurnDepth)
		} else {
			fmt.Fprintf(&sb, "        Context: %d\n", *event.ContextID)
		}
	}

	if b.verbose {
		switch {
		case len(event.Frames) > 0:
			sb.WriteString("        Backtrace:\n")
			for _, f := range event.Frames {
				fmt.Fprintf(&sb, "          %s\n            %s:%d\n", f.Function, f.File, f.Line)
			}
		case event.StackTrace != "":
			sb.WriteString("        Stack trace:\n")
			for _, line := range strings.Split(event.StackTrace, "\n") {
				fmt.Fprintf(&sb, "          %s\n", line)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	io.WriteString(b.out, sb.String())
}
