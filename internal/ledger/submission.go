// Package ledger turns a job registry into the two collaborators the service
// needs: a Submission Client that confirms one multihop job, and a
// Notification Subscriber that keeps the accepted/completed streams alive.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

const DefaultConfirmTimeout = 60 * time.Second

// Client submits step sequences. It never retries: a second transaction
// would spend the budget twice.
type Client struct {
	ledger         ports.Ledger
	confirmTimeout time.Duration
}

func NewClient(l ports.Ledger, confirmTimeout time.Duration) *Client {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Client{ledger: l, confirmTimeout: confirmTimeout}
}

// Submit sends steps as one multihop job carrying the sum of their budgets
// and waits, bounded by the confirm timeout, for the confirmation.
func (c *Client) Submit(ctx context.Context, steps []entity.StepSpec) (*entity.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	total := entity.TotalBudget(steps)
	slog.InfoContext(ctx, "submitting multihop job", "steps", len(steps), "value_wei", total.String())

	receipt, err := c.ledger.SubmitMultihop(ctx, steps, total)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", faults.ErrSubmissionTimeout, c.confirmTimeout, err)
		}
		return nil, fmt.Errorf("submit multihop: %w", err)
	}

	sub, err := ExtractSubmission(receipt, len(steps))
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", receipt.TxHash, err)
	}
	slog.InfoContext(ctx, "multihop job confirmed",
		"tx_hash", sub.TxHash, "block", receipt.BlockNumber, "multihop_id", sub.MultihopID, "job_ids", sub.StepIDs)
	return sub, nil
}

// ExtractSubmission reads the multihop id and the created job ids out of a
// confirmation. Job ids are taken in emission order, unless every job event
// carries an explicit step index, in which case that index decides.
func ExtractSubmission(r *entity.Receipt, want int) (*entity.Submission, error) {
	var multihops []string
	var jobs []entity.LedgerEvent
	for _, ev := range r.Events {
		switch ev.Name {
		case entity.EventCreatedMultihop:
			multihops = append(multihops, ev.ID)
		case entity.EventCreatedJob:
			jobs = append(jobs, ev)
		}
	}

	switch len(multihops) {
	case 1:
	case 0:
		return nil, faults.ErrMissingConfirmationEvent
	default:
		return nil, fmt.Errorf("%w: %d multihop created events", faults.ErrMissingConfirmationEvent, len(multihops))
	}
	if len(jobs) != want {
		return nil, fmt.Errorf("%w: %d job created events for %d steps", faults.ErrStepCountMismatch, len(jobs), want)
	}

	if indexed(jobs) {
		sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].StepIndex < jobs[j].StepIndex })
		for i, ev := range jobs {
			if ev.StepIndex != i {
				return nil, fmt.Errorf("%w: step index %d at position %d", faults.ErrStepCountMismatch, ev.StepIndex, i)
			}
		}
	}

	ids := make([]string, len(jobs))
	for i, ev := range jobs {
		ids[i] = ev.ID
	}
	return &entity.Submission{TxHash: r.TxHash, MultihopID: multihops[0], StepIDs: ids}, nil
}

func indexed(jobs []entity.LedgerEvent) bool {
	if len(jobs) == 0 {
		return false
	}
	for _, ev := range jobs {
		if ev.StepIndex < 0 {
			return false
		}
	}
	return true
}
