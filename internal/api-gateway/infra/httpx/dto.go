package httpx

import "encoding/json"

// CreateJobRequest keeps the instruction raw so a non-string value is
// reported as invalid rather than as malformed JSON.
type CreateJobRequest struct {
	Instruction json.RawMessage `json:"instruction"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	ActiveSessions int    `json:"activeSessions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// RequestID names the request that first used a conflicting idempotency key.
	RequestID string `json:"requestId,omitempty"`
}
