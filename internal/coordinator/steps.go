package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

const (
	msgDecomposed = "Job decomposed into 3 steps: copywriting → design → coding"
	msgSubmitting = "Creating multihop job on blockchain..."
)

// Step represents a single unit of work in a submission run.
// Nothing a step does can be undone: once the ledger transaction is sent,
// the budget is spent.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
}

// Run is the state shared by the steps of one submission.
type Run struct {
	SessionID   string
	Instruction string

	Descriptions []string
	Specs        []entity.StepSpec
	Submission   *entity.Submission

	tracker Tracker
}

// emit writes to the session's stream, if the session is still open.
func (r *Run) emit(ev tracking.Event) {
	if s, ok := r.tracker.Session(r.SessionID); ok {
		s.Emit(ev)
	}
}

// --- DecomposeStep ---

type DecomposeStep struct {
	run        *Run
	decomposer ports.Decomposer
}

func NewDecomposeStep(run *Run, d ports.Decomposer) *DecomposeStep {
	return &DecomposeStep{run: run, decomposer: d}
}

func (s *DecomposeStep) Name() string { return "Decompose_Instruction_Step" }

func (s *DecomposeStep) Execute(ctx context.Context) error {
	s.run.emit(tracking.NewDecomposing(s.run.Instruction))

	d, err := s.decomposer.Decompose(ctx, s.run.Instruction)
	if err != nil {
		if faults.Is(err, faults.ErrDecomposition) {
			return err
		}
		return fmt.Errorf("%w: %v", faults.ErrDecomposition, err)
	}
	s.run.Descriptions = d.Descriptions()

	s.run.emit(tracking.NewProgress(msgDecomposed))
	return nil
}

// --- BuildStepsStep ---

type BuildStepsStep struct {
	run    *Run
	policy Policy
	now    func() time.Time
}

func NewBuildStepsStep(run *Run, p Policy, now func() time.Time) *BuildStepsStep {
	return &BuildStepsStep{run: run, policy: p, now: now}
}

func (s *BuildStepsStep) Name() string { return "Build_Steps_Step" }

func (s *BuildStepsStep) Execute(_ context.Context) error {
	specs, err := BuildSteps(s.run.Descriptions, s.policy, s.now())
	if err != nil {
		return err
	}
	s.run.Specs = specs
	return nil
}

// --- SubmitStep ---

type SubmitStep struct {
	run       *Run
	submitter Submitter
}

func NewSubmitStep(run *Run, sub Submitter) *SubmitStep {
	return &SubmitStep{run: run, submitter: sub}
}

func (s *SubmitStep) Name() string { return "Submit_Multihop_Step" }

func (s *SubmitStep) Execute(ctx context.Context) error {
	if _, ok := s.run.tracker.Session(s.run.SessionID); !ok {
		return fmt.Errorf("%w: listener left before submission", faults.ErrSessionNotFound)
	}
	s.run.emit(tracking.NewProgress(msgSubmitting))

	sub, err := s.submitter.Submit(ctx, s.run.Specs)
	if err != nil {
		return err
	}
	s.run.Submission = sub
	return nil
}

// --- RecordStep ---

type RecordStep struct {
	run *Run
}

func NewRecordStep(run *Run) *RecordStep {
	return &RecordStep{run: run}
}

func (s *RecordStep) Name() string { return "Record_Submission_Step" }

func (s *RecordStep) Execute(_ context.Context) error {
	sub := s.run.Submission
	if sub == nil {
		return fmt.Errorf("%w: no submission to record", faults.ErrMissingConfirmationEvent)
	}
	return s.run.tracker.RecordSubmission(s.run.SessionID, sub.MultihopID, sub.StepIDs, s.run.Descriptions)
}
