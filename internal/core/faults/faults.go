// Package faults defines the error taxonomy shared by the creator service.
//
// Errors fall into three groups:
//
//   - Startup errors (ErrConfiguration): the process refuses to start.
//   - Session-terminal errors (ErrDecomposition, ErrSubmissionTimeout,
//     ErrSubmissionReverted, ErrMissingConfirmationEvent, ErrStepCountMismatch):
//     raised before a session has a multihop id; they end the session with an
//     error event and are never retried.
//   - Absorbed errors (ErrOutputRetrieval): logged and masked, never surfaced.
//
// Duplicate and foreign notifications are not errors at all and have no
// sentinel here.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Is is errors.Is, re-exported so callers only need this package.
var Is = errors.Is

var (
	ErrConfiguration            = errors.New("configuration error")
	ErrDecomposition            = errors.New("decomposition failed")
	ErrSubmissionTimeout        = errors.New("submission not confirmed in time")
	ErrSubmissionReverted       = errors.New("submission reverted")
	ErrMissingConfirmationEvent = errors.New("confirmation has no multihop created event")
	ErrStepCountMismatch        = errors.New("created job count does not match submitted steps")
	ErrOutputRetrieval          = errors.New("output retrieval failed")

	ErrDuplicateSession = errors.New("session already registered")
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadySubmitted = errors.New("session submission already recorded")
)

var sessionTerminal = []error{
	ErrDecomposition,
	ErrSubmissionTimeout,
	ErrSubmissionReverted,
	ErrMissingConfirmationEvent,
	ErrStepCountMismatch,
}

// IsSessionTerminal reports whether err ends a session before tracking starts.
func IsSessionTerminal(err error) bool {
	for _, target := range sessionTerminal {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Configf wraps a formatted message as a configuration error.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Reason renders err as the message carried by an error progress event.
func Reason(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}
