package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvocationStatus is the lifecycle state of an action invocation.
// Transitions are strictly forward: Pending -> Running -> one terminal state.
type InvocationStatus string

const (
	StatusPending   InvocationStatus = "pending"
	StatusRunning   InvocationStatus = "running"
	StatusCompleted InvocationStatus = "completed"
	StatusCancelled InvocationStatus = "cancelled"
	StatusError     InvocationStatus = "error"
)

// Terminal reports whether the status is one the invocation cannot leave.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// LogRecord is a single structured log line captured during an invocation
// and retained alongside it so a client can fetch "what this run printed"
// without needing access to the server's own operational log stream.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`

	// TraceID/SpanID correlate this log line with the OpenTelemetry span
	// active when it was emitted, if tracing is enabled. Empty otherwise.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// Invocation is the record of a single action call: its identity, the
// Thing/action it targets, its current status, timestamps, and the
// input/output payloads captured for the HTTP representation.
type Invocation struct {
	ID     uuid.UUID        `json:"id"`
	Thing  string           `json:"thing"`
	Action string           `json:"action"`
	Status InvocationStatus `json:"status"`

	TimeRequested time.Time  `json:"time_requested"`
	TimeStarted   *time.Time `json:"time_started,omitempty"`
	TimeCompleted *time.Time `json:"time_completed,omitempty"`

	Input  any `json:"input,omitempty"`
	Output any `json:"output,omitempty"`

	// Error holds the human-readable failure reason when Status is
	// StatusError or StatusCancelled; empty otherwise.
	Error string `json:"error,omitempty"`

	Log []LogRecord `json:"log,omitempty"`
}

// Href returns the conventional invocation resource path, matching the
// external-interfaces table: GET /action_invocations/{id}.
func (inv *Invocation) Href() string {
	return "/action_invocations/" + inv.ID.String()
}

// DurationMs returns the elapsed time from TimeStarted to TimeCompleted in
// milliseconds, or 0 if the invocation has not reached a terminal state
// (or was cancelled before starting).
func (inv *Invocation) DurationMs() int64 {
	if inv.TimeStarted == nil || inv.TimeCompleted == nil {
		return 0
	}
	return inv.TimeCompleted.Sub(*inv.TimeStarted).Milliseconds()
}
