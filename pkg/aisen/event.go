// event.go defines the canonical error event reported by the agent.

package aisen

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Severity indicates the severity level of an error event.
type Severity string

const (
	// SeverityWarning indicates a non-fatal issue that may need attention.
	SeverityWarning Severity = "warning"

	// SeverityError indicates a recoverable error that caused an operation to fail.
	SeverityError Severity = "error"

	// SeverityCrash indicates an unrecoverable error such as a panic.
	SeverityCrash Severity = "crash"
)

// SystemState captures system metrics at the time of an error.
type SystemState struct {
	// MemoryBytes is the current memory allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of active goroutines.
	GoroutineCount int

	// UptimeMs is the process uptime in milliseconds.
	UptimeMs int64

	// HostName is the hostname of the machine where the error occurred.
	HostName string

	// PID is the reporting process id.
	PID int
}

// Frame is a single parsed backtrace entry.
type Frame struct {
	// Function is the fully qualified function name (pkg/path.Func).
	Function string `json:"method"`

	// File is the source file path.
	File string `json:"file"`

	// Line is the line number within File, 0 if unknown.
	Line int `json:"number"`
}

// ErrorEvent is the canonical error representation.
// Identity, frames, and fingerprint are filled in by the agent before the
// event is queued for delivery.
type ErrorEvent struct {
	// Identity fields

	// EventID is a unique identifier for this error event (UUID).
	EventID string

	// Timestamp is when the error occurred.
	Timestamp time.Time

	// Fingerprint is a hash for grouping similar errors.
	Fingerprint string

	// Error details

	// Severity indicates the error severity (warning, error, crash).
	Severity Severity

	// ErrorType categorizes the error (panic, error, timeout, oom, guardrail).
	ErrorType string

	// Message is the human-readable error message.
	Message string

	// StackTrace is the optional raw stack trace text.
	StackTrace string

	// Frames is the parsed backtrace. Derived from StackTrace when empty.
	Frames []Frame

	// Operation context

	// Operation indicates what was happening (tool, llm, guardrail, handoff).
	Operation string

	// OperationID is an optional identifier (e.g., tool call ID).
	OperationID string

	// AgentName is the name of the agent that was running.
	AgentName string

	// ToolName is the name of the tool that failed (if applicable).
	ToolName string

	// ToolArgs is the scrubbed JSON representation of tool arguments.
	ToolArgs string

	// Conversation context

	// ContextID is the optional cxdb context ID for linking to conversation.
	// Uses pointer to distinguish "not set" from "zero value".
	ContextID *uint64

	// TurnDepth is the optional turn number in the conversation.
	// Uses pointer to distinguish "not set" from "zero value".
	TurnDepth *int

	// System state

	// SystemState captures system metrics at error time.
	SystemState *SystemState

	// Impact

	// TokensWasted is the optional count of tokens consumed before failure.
	// Uses pointer to distinguish "not set" from "zero value".
	TokensWasted *int64

	// Reporting context

	// Environment is the deployment environment (production, staging, ...).
	Environment string

	// Tags are free-form labels used for filtering on the collector.
	Tags []string

	// Metadata contains scrubbed key-value pairs for additional context.
	Metadata map[string]string
}

// NewErrorEvent builds an error-severity event from err. The stack is the
// one carried by err (see StackError) or else the caller's.
func NewErrorEvent(err error) ErrorEvent {
	if err == nil {
		err = errors.New("nil error")
	}
	event := ErrorEvent{
		Severity:  SeverityError,
		ErrorType: ErrorClass(err),
		Message:   err.Error(),
	}
	var se StackError
	if errors.As(err, &se) {
		event.StackTrace = string(se.Stack())
	} else {
		event.StackTrace = string(debug.Stack())
	}
	event.Frames = ParseStackTrace(event.StackTrace)
	return event
}

// ErrorClass names the dynamic type of err, e.g. "os.PathError".
// Anonymous errors created by errors.New or fmt.Errorf report as "error".
func ErrorClass(err error) string {
	if err == nil {
		return "error"
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	switch name {
	case "errors.errorString", "fmt.wrapError", "fmt.wrapErrors", "errors.joinError":
		return "error"
	}
	return name
}
