package tracking

import (
	"sync"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
)

// StepStatus is the lifecycle state of one step. Values are ordered; a step
// only ever moves forward.
type StepStatus int

const (
	StatusPending StepStatus = iota
	StatusAccepted
	StatusCompleted
)

func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Session tracks one instruction from registration until close. Mutable
// fields are guarded by mu. Lock order is Engine.mu before Session.mu.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	multihopID   string
	stepIDs      []string
	descriptions []string
	statuses     [entity.StepCount]StepStatus
	outputs      [entity.StepCount]string
	completing   [entity.StepCount]bool
	// ch stays readable after close so the listener can drain it; closed
	// guards every write.
	ch     *Channel
	closed bool
	// subscribed is set once the session holds a reference on the shared
	// subscriptions.
	subscribed bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		ch:        NewChannel(),
	}
}

// Events is the listener side of the session's progress channel.
func (s *Session) Events() <-chan Event {
	return s.ch.Events()
}

// Detach is called by the listener when it stops reading.
func (s *Session) Detach() {
	s.ch.Detach()
}

// Emit pushes ev to the listener. It is a no-op once the session is closed.
func (s *Session) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

func (s *Session) emitLocked(ev Event) {
	if s.closed {
		return
	}
	s.ch.Push(ev)
}

// close releases the sink. It reports false if the session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.ch.Close()
	return true
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID           string
	MultihopID   string
	StepIDs      []string
	Descriptions []string
	Statuses     []StepStatus
	Outputs      []string
	CreatedAt    time.Time
	Closed       bool
}

// Complete reports whether every step has completed.
func (s Snapshot) Complete() bool {
	for _, st := range s.Statuses {
		if st != StatusCompleted {
			return false
		}
	}
	return len(s.Statuses) == entity.StepCount
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.ID,
		MultihopID:   s.multihopID,
		StepIDs:      append([]string(nil), s.stepIDs...),
		Descriptions: append([]string(nil), s.descriptions...),
		Statuses:     append([]StepStatus(nil), s.statuses[:]...),
		Outputs:      append([]string(nil), s.outputs[:]...),
		CreatedAt:    s.CreatedAt,
		Closed:       s.closed,
	}
}

func (s *Session) allCompletedLocked() bool {
	for _, st := range s.statuses {
		if st != StatusCompleted {
			return false
		}
	}
	return true
}
