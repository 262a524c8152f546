// instrument.go provides the Instrument function for convenient runner setup.
// This is the recommended entry point for integrating aisen with ai-agents-sdk.

package agentssdk

import (
	"github.com/strongdm/ai-agents-sdk/pkg/agents"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// WrapOption configures a WrappedRunner.
type WrapOption func(*WrappedRunner)

// WithLogger sets the logger used when recording an error fails.
func WithLogger(logger aisen.Logger) WrapOption {
	return func(w *WrappedRunner) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEnrichmentStore sets the enrichment store for the wrapper.
// The store is used to correlate hook data with errors captured at the runner boundary.
func WithEnrichmentStore(store EnrichmentStore) WrapOption {
	return func(w *WrappedRunner) {
		if store != nil {
			w.enrichments = store
		}
	}
}

// Instrument wraps a Runner with error and panic capture.
//
// Example:
//
//	agent.Start(agent.FromOptions(map[string]any{"api_key": key}))
//	defer agent.Stop()
//
//	wrapped := agentssdk.Instrument(agents.NewRunner(client), nil)
//	result, err := wrapped.Run(ctx, myAgent, input, session, nil)
//
// A nil collector reports through the default registry's running agent, so
// a wrapper built before Start still reports once the agent is up.
func Instrument(baseRunner *agents.Runner, collector aisen.Collector, opts ...WrapOption) *WrappedRunner {
	wrapper := newWrappedRunner(baseRunner, collector)
	for _, opt := range opts {
		opt(wrapper)
	}
	return wrapper
}
