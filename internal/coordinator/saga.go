package coordinator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
)

const tracerName = "github.com/jcmexdev/multihop-creator/internal/coordinator"

// Orchestrator runs the steps of one submission in order and stops at the
// first failure. Every transition is appended to the track log.
type Orchestrator struct {
	sessionID string
	payload   string
	steps     []Step
	logRepo   tracklog.Repository
}

// NewOrchestrator returns an orchestrator for one session. logRepo may be nil,
// in which case transitions are not persisted.
func NewOrchestrator(sessionID, payload string, steps []Step, logRepo tracklog.Repository) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		payload:   payload,
		steps:     steps,
		logRepo:   logRepo,
	}
}

// Start runs the steps sequentially.
func (o *Orchestrator) Start(ctx context.Context) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "submission")
	span.SetAttributes(attribute.String("session.id", o.sessionID))
	defer span.End()

	o.save(ctx, tracklog.StatusStarted, "", o.payload, nil)

	for _, step := range o.steps {
		slog.InfoContext(ctx, "executing step", "session_id", o.sessionID, "step", step.Name())

		stepCtx, stepSpan := tracer.Start(ctx, step.Name())
		err := step.Execute(stepCtx)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "step failed", "session_id", o.sessionID, "step", step.Name(), "error", err)
			o.save(ctx, tracklog.StatusFailed, step.Name(), "", []string{err.Error()})
			return err
		}
		stepSpan.End()
		o.save(ctx, tracklog.StatusStepDone, step.Name(), "", nil)
	}

	slog.InfoContext(ctx, "submission recorded, tracking started", "session_id", o.sessionID)
	return nil
}

func (o *Orchestrator) save(ctx context.Context, status tracklog.Status, step, payload string, errs []string) {
	if o.logRepo == nil {
		return
	}
	entry := tracklog.NewEntry(ctx, o.sessionID, status, step, payload, errs)
	if err := o.logRepo.Save(ctx, entry); err != nil {
		slog.WarnContext(ctx, "track log write failed", "session_id", o.sessionID, "status", status, "error", err)
	}
}
