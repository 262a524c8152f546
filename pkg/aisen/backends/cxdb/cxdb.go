// Package cxdb provides a backend that persists errors to cxdb as SystemMessage items.
package cxdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strongdm/aisen-agent/pkg/aisen"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

var errNoClient = errors.New("cxdb: no client")

// pinger is implemented by clients that support a connectivity check.
type pinger interface {
	Ping(ctx context.Context) error
}

// Option configures the cxdb backend.
type Option func(*config)

type config struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for orphan error contexts.
func WithOrphanLabels(labels []string) Option {
	return func(c *config) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) Option {
	return func(c *config) {
		c.clientTag = tag
	}
}

// Backend writes errors to cxdb as SystemMessage items.
type Backend struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
}

var _ aisen.Backend = (*Backend)(nil)

// New creates a backend that writes to cxdb.
func New(client CXDBClient, opts ...Option) *Backend {
	cfg := &config{
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    "aisen",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Backend{
		client:       client,
		orphanLabels: cfg.orphanLabels,
		clientTag:    cfg.clientTag,
	}
}

// Ping checks connectivity when the client supports it.
func (b *Backend) Ping(ctx context.Context) error {
	if b.client == nil {
		return errNoClient
	}
	if p, ok := b.client.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Deliver persists an error event to cxdb. Client failures are retryable;
// a payload that cannot be encoded is not.
func (b *Backend) Deliver(ctx context.Context, event aisen.ErrorEvent) aisen.Response {
	if b.client == nil {
		return aisen.Fatal(errNoClient)
	}

	var contextID uint64
	isOrphan := false

	if event.ContextID != nil {
		contextID = *event.ContextID
	} else {
		// Create orphan context
		head, err := b.client.CreateContext(ctx, 0)
		if err != nil {
			return aisen.ResponseFor(0, fmt.Errorf("create orphan context: %w", err))
		}
		contextID = head.ContextID
		isOrphan = true
	}

	item := b.buildConversationItem(event, isOrphan)

	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return aisen.Fatal(fmt.Errorf("encode payload: %w", err))
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: event.EventID,
	}

	if _, err := b.client.AppendTurn(ctx, req); err != nil {
		return aisen.ResponseFor(0, fmt.Errorf("append turn: %w", err))
	}

	return aisen.ResponseFor(0, nil)
}

// buildConversationItem creates a canonical ConversationItem from an ErrorEvent.
func (b *Backend) buildConversationItem(event aisen.ErrorEvent, isOrphan bool) *cxdtypes.ConversationItem {
	// Build title: "error_type: truncated_message"
	title := event.ErrorType
	if event.Message != "" {
		const maxMsgLen = 80
		msg := event.Message
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		title = event.ErrorType + ": " + msg
	}

	// Truncate title to 100 chars
	if len(title) > 100 {
		title = title[:97] + "..."
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: event.Timestamp.UnixMilli(),
		ID:        event.EventID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title,
			Content: buildErrorDetails(event),
		},
	}

	// Add context metadata for orphan contexts. cxdb expects this on the first turn.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    b.orphanLabels,
			ClientTag: b.clientTag,
		}
	}

	return item
}

// buildErrorDetails encodes the full ErrorEvent as JSON for SystemMessage.Content.
func buildErrorDetails(event aisen.ErrorEvent) string {
	details := map[string]any{
		"event_id":    event.EventID,
		"severity":    string(event.Severity),
		"error_type":  event.ErrorType,
		"message":     event.Message,
		"fingerprint": event.Fingerprint,
		"operation":   event.Operation,
	}

	if event.StackTrace != "" {
		details["stack_trace"] = event.StackTrace
	}
	if event.OperationID != "" {
		details["operation_id"] = event.OperationID
	}
	if event.AgentName != "" {
		details["agent_name"] = event.AgentName
	}
	if event.ToolName != "" {
		details["tool_name"] = event.ToolName
	}
	if event.ToolArgs != "" {
		details["tool_args"] = event.ToolArgs
	}
	if event.ContextID != nil {
		details["context_id"] = *event.ContextID
	}
	if event.TurnDepth != nil {
		details["turn_depth"] = *event.TurnDepth
	}
	if event.SystemState != nil {
		details["system_state"] = map[string]any{
			"memory_bytes":    event.SystemState.MemoryBytes,
			"goroutine_count": event.SystemState.GoroutineCount,
			"uptime_ms":       event.SystemState.UptimeMs,
			"host_name":       event.SystemState.HostName,
			"pid":             event.SystemState.PID,
		}
	}
	if event.TokensWasted != nil {
		details["tokens_wasted"] = *event.TokensWasted
	}
	if len(event.Metadata) > 0 {
		details["metadata"] = event.Metadata
	}
	if event.Environment != "" {
		details["environment"] = event.Environment
	}
	if len(event.Tags) > 0 {
		details["tags"] = event.Tags
	}
	if len(event.Frames) > 0 {
		details["backtrace"] = event.Frames
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		// Fallback to simple error message
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, err)
	}
	return string(jsonBytes)
}
