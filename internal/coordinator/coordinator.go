// Package coordinator drives one instruction from decomposition to a recorded
// ledger submission. From that point the tracking engine owns the session.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

// Submitter submits a step sequence and waits for its confirmation.
type Submitter interface {
	Submit(ctx context.Context, steps []entity.StepSpec) (*entity.Submission, error)
}

// Tracker is the part of the tracking engine the coordinator drives.
type Tracker interface {
	Session(sessionID string) (*tracking.Session, bool)
	RecordSubmission(sessionID, multihopID string, stepIDs, descriptions []string) error
	Fail(sessionID string, err error)
}

var _ Tracker = (*tracking.Engine)(nil)

type Coordinator struct {
	tracker    Tracker
	decomposer ports.Decomposer
	submitter  Submitter
	policy     Policy
	logRepo    tracklog.Repository
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTrackLog persists orchestration transitions to repo.
func WithTrackLog(repo tracklog.Repository) Option {
	return func(c *Coordinator) { c.logRepo = repo }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(tracker Tracker, d ports.Decomposer, sub Submitter, p Policy, opts ...Option) *Coordinator {
	c := &Coordinator{
		tracker:    tracker,
		decomposer: d,
		submitter:  sub,
		policy:     p,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run decomposes, builds, submits and records the instruction for an already
// registered session. Any failure before the submission is recorded ends the
// session with an error event. A confirmation arriving after the listener left
// is dropped.
func (c *Coordinator) Run(ctx context.Context, sessionID, instruction string) error {
	run := &Run{SessionID: sessionID, Instruction: instruction, tracker: c.tracker}

	steps := []Step{
		NewDecomposeStep(run, c.decomposer),
		NewBuildStepsStep(run, c.policy, c.now),
		NewSubmitStep(run, c.submitter),
		NewRecordStep(run),
	}

	payload, _ := json.Marshal(map[string]string{"instruction": instruction})
	err := NewOrchestrator(sessionID, string(payload), steps, c.logRepo).Start(ctx)
	switch {
	case err == nil:
		return nil
	case faults.Is(err, faults.ErrSessionNotFound):
		// Listener disconnected while the submission was in flight.
		multihopID := ""
		if run.Submission != nil {
			multihopID = run.Submission.MultihopID
		}
		slog.WarnContext(ctx, "late confirmation ignored", "session_id", sessionID, "multihop_id", multihopID)
	case faults.Is(err, faults.ErrAlreadySubmitted):
		// The session already tracks another multihop; failing it would
		// drop a job the ledger has accepted.
		slog.ErrorContext(ctx, "session submitted twice", "session_id", sessionID, "error", err)
	case faults.IsSessionTerminal(err):
		c.tracker.Fail(sessionID, err)
	default:
		slog.ErrorContext(ctx, "unclassified submission failure", "session_id", sessionID, "error", err)
		c.tracker.Fail(sessionID, err)
	}
	return err
}
