// breadcrumbs.go records the LLM and tool calls that led up to an error.
// Only sizes, names, and counts are kept; prompt and tool text never is.

package agentssdk

import (
	"encoding/json"
	"time"

	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

const (
	// maxBreadcrumbs bounds the trail kept per run; older entries are evicted.
	maxBreadcrumbs = 10

	// BreadcrumbsMetadataKey is the notice metadata key holding the JSON trail.
	BreadcrumbsMetadataKey = "aisen.breadcrumbs"
)

// Breadcrumb is one operation in a run's trail.
type Breadcrumb struct {
	Kind       string    `json:"kind"` // "llm" or "tool"
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	Done       bool      `json:"done"`

	LLM  *LLMCall  `json:"llm,omitempty"`
	Tool *ToolCall `json:"tool,omitempty"`
}

// LLMCall summarizes a model request and, once finished, its response.
type LLMCall struct {
	Model         string   `json:"model"`
	Provider      string   `json:"provider,omitempty"`
	MessageCount  int      `json:"message_count"`
	ContentLength int      `json:"content_length"`
	ToolNames     []string `json:"tool_names,omitempty"`

	ResponseID       string   `json:"response_id,omitempty"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	ToolCallNames    []string `json:"tool_call_names,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	TotalTokens      int      `json:"total_tokens,omitempty"`
}

// ToolCall summarizes a tool invocation.
type ToolCall struct {
	Name       string `json:"name"`
	CallID     string `json:"call_id,omitempty"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size,omitempty"`
}

func llmBreadcrumb(agentName string, req llmsdk.Request, now time.Time) Breadcrumb {
	call := &LLMCall{
		Model:        req.Model,
		Provider:     string(req.Provider),
		MessageCount: len(req.Messages),
	}
	for _, msg := range req.Messages {
		for _, part := range msg.Parts {
			call.ContentLength += len(part.Text)
		}
	}
	for _, tool := range req.Tools {
		call.ToolNames = append(call.ToolNames, tool.Name)
	}
	return Breadcrumb{Kind: "llm", StartedAt: now, AgentName: agentName, LLM: call}
}

func toolBreadcrumb(agentName, toolName string, call llmsdk.ToolCall, now time.Time) Breadcrumb {
	return Breadcrumb{
		Kind:      "tool",
		StartedAt: now,
		AgentName: agentName,
		Tool: &ToolCall{
			Name:      toolName,
			CallID:    call.ID,
			InputSize: len(call.Arguments),
		},
	}
}

// addBreadcrumb appends b, evicting the oldest entry past maxBreadcrumbs.
func (e *Enrichment) addBreadcrumb(b Breadcrumb) {
	if len(e.Breadcrumbs) >= maxBreadcrumbs {
		e.Breadcrumbs = append(e.Breadcrumbs[:0:0], e.Breadcrumbs[len(e.Breadcrumbs)-maxBreadcrumbs+1:]...)
	}
	e.Breadcrumbs = append(e.Breadcrumbs, b)
}

// openBreadcrumb returns the most recent unfinished breadcrumb of kind.
func (e *Enrichment) openBreadcrumb(kind string) *Breadcrumb {
	for i := len(e.Breadcrumbs) - 1; i >= 0; i-- {
		if b := &e.Breadcrumbs[i]; b.Kind == kind && !b.Done {
			return b
		}
	}
	return nil
}

// finishLLM completes the open LLM breadcrumb with response metadata. The
// LLMCall is replaced rather than edited, since copies handed out by Get
// share it.
func (e *Enrichment) finishLLM(resp llmsdk.Response, now time.Time) {
	b := e.openBreadcrumb("llm")
	if b == nil || b.LLM == nil {
		return
	}
	call := *b.LLM
	call.ResponseID = resp.ID
	call.FinishReason = string(resp.FinishReason)
	call.PromptTokens = resp.Usage.PromptTokens
	call.CompletionTokens = resp.Usage.CompletionTokens
	call.TotalTokens = resp.Usage.TotalTokens
	call.ToolCallNames = nil
	for _, tc := range resp.ToolCalls {
		call.ToolCallNames = append(call.ToolCallNames, tc.Name)
	}
	b.LLM = &call
	b.finish(now)
}

// finishTool completes the open tool breadcrumb named toolName.
func (e *Enrichment) finishTool(toolName, output string, now time.Time) {
	b := e.openBreadcrumb("tool")
	if b == nil || b.Tool == nil || b.Tool.Name != toolName {
		return
	}
	call := *b.Tool
	call.OutputSize = len(output)
	b.Tool = &call
	b.finish(now)
}

func (b *Breadcrumb) finish(now time.Time) {
	b.Done = true
	b.DurationMs = max(now.Sub(b.StartedAt).Milliseconds(), 0)
}

// encodeBreadcrumbs renders the trail for notice metadata. An empty trail
// encodes to "".
func encodeBreadcrumbs(trail []Breadcrumb) (string, error) {
	if len(trail) == 0 {
		return "", nil
	}
	data, err := json.Marshal(trail)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
