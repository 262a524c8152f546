// builders.go builds ErrorEvents from run errors and panics.

package agentssdk

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

var guardrailPatterns = []string{
	"guardrail",
	"content policy",
	"safety filter",
	"blocked by policy",
}

// buildErrorEvent creates an ErrorEvent from an error with enrichment data.
func buildErrorEvent(err error, contextID uint64, enrichment Enrichment) aisen.ErrorEvent {
	event := aisen.NewErrorEvent(err)
	event.ErrorType = classifyError(err)
	enrich(&event, contextID, enrichment)
	return event
}

// buildPanicEvent creates a crash event from a recovered panic value.
func buildPanicEvent(recovered any, contextID uint64, enrichment Enrichment) aisen.ErrorEvent {
	event := aisen.PanicEvent(recovered, debug.Stack())
	enrich(&event, contextID, enrichment)
	return event
}

func enrich(event *aisen.ErrorEvent, contextID uint64, enrichment Enrichment) {
	event.Operation = enrichment.Operation
	event.OperationID = enrichment.OperationID
	event.AgentName = enrichment.AgentName
	event.ToolName = enrichment.ToolName

	if contextID != 0 {
		event.ContextID = &contextID
	}

	if enrichment.Model != "" {
		setMetadata(event, "aisen.model", enrichment.Model)
	}
	if trail, err := encodeBreadcrumbs(enrichment.Breadcrumbs); err == nil && trail != "" {
		setMetadata(event, BreadcrumbsMetadataKey, trail)
	}
}

func setMetadata(event *aisen.ErrorEvent, key, value string) {
	if event.Metadata == nil {
		event.Metadata = make(map[string]string)
	}
	event.Metadata[key] = value
}

// classifyError maps run errors onto timeout, canceled, guardrail, or error.
func classifyError(err error) string {
	if err == nil {
		return "error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	// Guardrail failures carry no distinct type, only a message.
	msg := strings.ToLower(err.Error())
	for _, p := range guardrailPatterns {
		if strings.Contains(msg, p) {
			return "guardrail"
		}
	}

	return "error"
}
