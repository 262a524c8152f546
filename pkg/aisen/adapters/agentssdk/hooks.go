// hooks.go implements RunHooks for capturing operation context for enrichment.
// This adapter provides ENRICHMENT only - error detection is done by WrappedRunner.

package agentssdk

import (
	"context"
	"time"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// HookAdapter implements agents.RunHooks to capture operation context.
// It delegates to an inner RunHooks and records enrichment and breadcrumbs
// for the run identified by the context.
type HookAdapter struct {
	store  EnrichmentStore
	inner  agents.RunHooks
	logger aisen.Logger
	now    func() time.Time
}

// NewHookAdapter wraps an existing RunHooks and captures operation context.
//
// The inner hooks (if non-nil) are called for all hook methods; only their
// errors are returned. A nil logger discards output.
func NewHookAdapter(store EnrichmentStore, inner agents.RunHooks, logger aisen.Logger) agents.RunHooks {
	if logger == nil {
		logger = aisen.NopLogger{}
	}
	return &HookAdapter{
		store:  store,
		inner:  inner,
		logger: logger,
		now:    time.Now,
	}
}

// OnAgentStart captures the agent name for enrichment.
func (h *HookAdapter) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	if agent != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = agent.Name()
		})
	}

	if h.inner != nil {
		return h.inner.OnAgentStart(ctx, runCtx, agent)
	}
	return nil
}

// OnAgentEnd delegates to inner hooks.
func (h *HookAdapter) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	if h.inner != nil {
		return h.inner.OnAgentEnd(ctx, runCtx, agent, result)
	}
	return nil
}

// OnHandoff records the handoff and the agent taking over.
func (h *HookAdapter) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	h.update(ctx, func(e *Enrichment) {
		e.Operation = "handoff"
		if to != nil {
			e.AgentName = to.Name()
		}
	})

	if h.inner != nil {
		return h.inner.OnHandoff(ctx, runCtx, from, to)
	}
	return nil
}

// OnToolStart captures tool context and opens a tool breadcrumb.
func (h *HookAdapter) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "tool"
		e.ToolName = tool.Name
		e.ToolCallID = call.ID
		e.OperationID = call.ID
		e.addBreadcrumb(toolBreadcrumb(e.AgentName, tool.Name, call, now))
	})

	if h.inner != nil {
		return h.inner.OnToolStart(ctx, runCtx, agent, tool, call)
	}
	return nil
}

// OnToolEnd closes the tool breadcrumb.
func (h *HookAdapter) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		e.finishTool(tool.Name, output, now)
	})

	if h.inner != nil {
		return h.inner.OnToolEnd(ctx, runCtx, agent, tool, output)
	}
	return nil
}

// OnLLMStart captures LLM context and opens an LLM breadcrumb.
func (h *HookAdapter) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "llm"
		e.Model = req.Model
		e.addBreadcrumb(llmBreadcrumb(e.AgentName, req, now))
	})

	if h.inner != nil {
		return h.inner.OnLLMStart(ctx, runCtx, agent, req)
	}
	return nil
}

// OnLLMEnd closes the LLM breadcrumb with response metadata.
func (h *HookAdapter) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		e.finishLLM(resp, now)
	})

	if h.inner != nil {
		return h.inner.OnLLMEnd(ctx, runCtx, agent, resp)
	}
	return nil
}

// update applies fn to the run's enrichment. Outside a wrapped run there is
// nothing to correlate with.
func (h *HookAdapter) update(ctx context.Context, fn func(e *Enrichment)) {
	runID, ok := aisen.RunIDFromContext(ctx)
	if !ok {
		h.logger.Debug("hook fired outside a wrapped run, skipping enrichment")
		return
	}
	h.store.Update(runID, fn)
}
