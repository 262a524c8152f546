// wrapper.go implements WrappedRunner that wraps agents.Runner to capture errors and panics.
// This is the PRIMARY error capture mechanism - hooks provide enrichment only.

package agentssdk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/strongdm/ai-agents-sdk/pkg/agents"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	"github.com/strongdm/aisen-agent/pkg/aisen/agent"
)

// runner is the subset of *agents.Runner the wrapper drives.
type runner interface {
	Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error)
	RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error)
	RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error)
}

// WrappedRunner wraps an agents.Runner to capture errors and panics.
// It is the primary error capture mechanism - hooks provide enrichment only.
type WrappedRunner struct {
	inner       runner
	base        *agents.Runner
	collector   aisen.Collector
	enrichments EnrichmentStore
	logger      aisen.Logger
	startTime   time.Time
}

// NewWrappedRunner creates a new WrappedRunner that wraps the given Runner.
// A nil collector reports through the default registry's running agent. A
// nil store gets a fresh in-memory one.
func NewWrappedRunner(inner *agents.Runner, collector aisen.Collector, store EnrichmentStore, logger aisen.Logger) *WrappedRunner {
	w := newWrappedRunner(inner, collector)
	if store != nil {
		w.enrichments = store
	}
	if logger != nil {
		w.logger = logger
	}
	return w
}

func newWrappedRunner(inner *agents.Runner, collector aisen.Collector) *WrappedRunner {
	if collector == nil {
		collector = activeAgent{}
	}
	w := &WrappedRunner{
		base:        inner,
		collector:   collector,
		enrichments: NewEnrichmentStore(),
		logger:      aisen.NopLogger{},
		startTime:   time.Now(),
	}
	if inner != nil {
		w.inner = inner
	}
	return w
}

// Run executes the agent with the given input and session, capturing any errors or panics.
func (w *WrappedRunner) Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error) {
	runID := uuid.NewString()
	ctx = aisen.WithRunID(ctx, runID)
	defer w.enrichments.Delete(runID)

	contextID := w.extractContextID(ctx, session)
	wrappedCfg := w.wrapRunConfig(cfg)

	defer w.capturePanic(ctx, runID, contextID)

	result, err := w.inner.Run(ctx, agent, input, session, wrappedCfg)
	if err != nil {
		w.captureError(ctx, runID, contextID, err)
	}
	return result, err
}

// RunOnce executes a single turn of the agent, capturing any errors or panics.
func (w *WrappedRunner) RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error) {
	runID := uuid.NewString()
	ctx = aisen.WithRunID(ctx, runID)
	defer w.enrichments.Delete(runID)

	// No session in RunOnce; only the context can carry an id.
	contextID := w.extractContextID(ctx, nil)
	wrappedCfg := w.wrapRunConfig(cfg)

	defer w.capturePanic(ctx, runID, contextID)

	result, err := w.inner.RunOnce(ctx, agent, input, wrappedCfg)
	if err != nil {
		w.captureError(ctx, runID, contextID, err)
	}
	return result, err
}

// RunStream starts a streaming run, capturing any errors at the start.
// Errors during streaming are not captured by this wrapper.
func (w *WrappedRunner) RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error) {
	runID := uuid.NewString()
	ctx = aisen.WithRunID(ctx, runID)
	// The stream may outlive this call, so enrichment is only released on
	// the error path.

	contextID := w.extractContextID(ctx, session)
	wrappedCfg := w.wrapRunConfig(cfg)

	defer w.capturePanic(ctx, runID, contextID)

	stream, err := w.inner.RunStream(ctx, agent, input, session, wrappedCfg)
	if err != nil {
		w.captureError(ctx, runID, contextID, err)
		w.enrichments.Delete(runID)
	}
	return stream, err
}

// extractContextID asks the session first, then falls back to ctx.
func (w *WrappedRunner) extractContextID(ctx context.Context, session any) uint64 {
	if provider, ok := session.(aisen.ContextIDProvider); ok {
		if id, err := provider.ContextID(ctx); err == nil {
			return id
		}
	}
	if id, ok := aisen.ContextIDFromContext(ctx); ok {
		return id
	}
	return 0
}

// wrapRunConfig clones cfg and wraps hooks with HookAdapter for enrichment capture.
func (w *WrappedRunner) wrapRunConfig(cfg *agents.RunConfig) *agents.RunConfig {
	var cloned agents.RunConfig
	if cfg != nil {
		cloned = *cfg
	}
	cloned.Hooks = NewHookAdapter(w.enrichments, cloned.Hooks, w.logger)
	return &cloned
}

func (w *WrappedRunner) captureError(ctx context.Context, runID string, contextID uint64, err error) {
	enrichment, _ := w.enrichments.Get(runID)
	event := buildErrorEvent(err, contextID, enrichment)
	event.SystemState = aisen.CaptureSystemState(w.startTime)
	w.safeRecord(ctx, event)
}

// capturePanic recovers from a panic, records it, and re-panics.
func (w *WrappedRunner) capturePanic(ctx context.Context, runID string, contextID uint64) {
	if r := recover(); r != nil {
		enrichment, _ := w.enrichments.Get(runID)
		event := buildPanicEvent(r, contextID, enrichment)
		event.SystemState = aisen.CaptureSystemState(w.startTime)
		w.safeRecord(ctx, event)
		panic(r)
	}
}

// safeRecord records an event, logging any errors rather than propagating them.
func (w *WrappedRunner) safeRecord(ctx context.Context, event aisen.ErrorEvent) {
	if err := w.collector.Record(ctx, event); err != nil {
		w.logger.Debug("failed to record agent run error", "error", err)
	}
}

// Inner returns the underlying Runner for advanced usage.
func (w *WrappedRunner) Inner() *agents.Runner {
	return w.base
}

// activeAgent records through whichever agent the default registry holds
// at the time of the call.
type activeAgent struct{}

func (activeAgent) Record(ctx context.Context, event aisen.ErrorEvent) error {
	return agent.Instance().Record(ctx, event)
}

func (activeAgent) Flush(ctx context.Context) error {
	return agent.Instance().Flush(ctx)
}

func (activeAgent) Close() error { return nil }
