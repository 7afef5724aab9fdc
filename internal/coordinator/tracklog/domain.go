// Package tracklog defines the audit trail of tracking sessions.
//
// Every transition a session goes through (phases of the request, step
// acceptance and completion, close) is appended as one immutable entry. The
// log is for observability only: live sessions are never rebuilt from it.
// Each entry carries the trace_id of the span that was active when it was
// written, so a row can be joined with the distributed trace.
package tracklog

import "time"

// Status is the transition recorded by an entry.
type Status string

const (
	StatusStarted       Status = "STARTED"
	StatusStepDone      Status = "STEP_DONE"
	StatusSubmitted     Status = "SUBMITTED"
	StatusStepAccepted  Status = "STEP_ACCEPTED"
	StatusStepCompleted Status = "STEP_COMPLETED"
	StatusOutputMissing Status = "OUTPUT_MISSING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusAbandoned     Status = "ABANDONED"
)

// Entry is a single row of the track_logs table.
type Entry struct {
	SessionID string
	Status    Status

	// CurrentStep names the orchestration step or ledger step ("step-2")
	// the entry is about. Empty for session-level transitions.
	CurrentStep string

	// MultihopID is known from SUBMITTED onwards.
	MultihopID string

	// Payload is the JSON-serialised instruction, written once on STARTED.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
