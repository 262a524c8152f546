package server

import (
	"time"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

// ServerInfo describes the reporting host.
type ServerInfo struct {
	Environment string `json:"environment_name,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	ProjectRoot string `json:"project_root,omitempty"`
	PID         int    `json:"pid,omitempty"`
}

type notice struct {
	Notifier notifier          `json:"notifier"`
	Error    noticeError       `json:"error"`
	Server   ServerInfo        `json:"server"`
	Context  noticeContext     `json:"context"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type notifier struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type noticeError struct {
	ID          string        `json:"token"`
	Class       string        `json:"class"`
	Message     string        `json:"message"`
	Severity    string        `json:"severity"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Backtrace   []aisen.Frame `json:"backtrace"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

type noticeContext struct {
	Operation    string  `json:"operation,omitempty"`
	OperationID  string  `json:"operation_id,omitempty"`
	AgentName    string  `json:"agent_name,omitempty"`
	ToolName     string  `json:"tool_name,omitempty"`
	ToolArgs     string  `json:"tool_args,omitempty"`
	ContextID    *uint64 `json:"context_id,omitempty"`
	TurnDepth    *int    `json:"turn_depth,omitempty"`
	TokensWasted *int64  `json:"tokens_wasted,omitempty"`
	MemoryBytes  int64   `json:"memory_bytes,omitempty"`
	Goroutines   int     `json:"goroutines,omitempty"`
	UptimeMs     int64   `json:"uptime_ms,omitempty"`
}

// newNotice maps an event onto the collector wire format. Event-level
// environment and host state override the backend defaults.
func newNotice(event aisen.ErrorEvent, server ServerInfo) notice {
	n := notice{
		Notifier: notifier{Name: aisen.NotifierName, Version: aisen.Version},
		Error: noticeError{
			ID:          event.EventID,
			Class:       event.ErrorType,
			Message:     event.Message,
			Severity:    string(event.Severity),
			Fingerprint: event.Fingerprint,
			Tags:        event.Tags,
			Backtrace:   event.Frames,
			OccurredAt:  event.Timestamp.UTC(),
		},
		Server: server,
		Context: noticeContext{
			Operation:    event.Operation,
			OperationID:  event.OperationID,
			AgentName:    event.AgentName,
			ToolName:     event.ToolName,
			ToolArgs:     event.ToolArgs,
			ContextID:    event.ContextID,
			TurnDepth:    event.TurnDepth,
			TokensWasted: event.TokensWasted,
		},
		Metadata: event.Metadata,
	}
	if n.Error.Backtrace == nil {
		n.Error.Backtrace = []aisen.Frame{}
	}
	if event.Environment != "" {
		n.Server.Environment = event.Environment
	}
	if st := event.SystemState; st != nil {
		if st.HostName != "" {
			n.Server.Hostname = st.HostName
		}
		if st.PID != 0 {
			n.Server.PID = st.PID
		}
		n.Context.MemoryBytes = st.MemoryBytes
		n.Context.Goroutines = st.GoroutineCount
		n.Context.UptimeMs = st.UptimeMs
	}
	return n
}
