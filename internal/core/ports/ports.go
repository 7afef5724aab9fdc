package ports

import (
	"context"
	"math/big"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
)

// Decomposer splits a free-text instruction into exactly three step descriptions.
type Decomposer interface {
	Decompose(ctx context.Context, instruction string) (entity.Decomposition, error)
}

// Ledger is the job registry: it accepts one atomic multihop submission and
// blocks until the ledger confirms it or ctx expires.
type Ledger interface {
	SubmitMultihop(ctx context.Context, steps []entity.StepSpec, total *big.Int) (*entity.Receipt, error)
}

// OutputReader resolves the output reference of a completed job. Best-effort.
type OutputReader interface {
	ReadStepOutput(ctx context.Context, jobID string) (string, error)
}

// LogSource yields raw registry notifications of one kind. Watch blocks,
// calling deliver with each batch, until ctx is done or the transport fails.
type LogSource interface {
	Watch(ctx context.Context, kind entity.NotificationKind, deliver func([]entity.Notification)) error
}

// NotificationSource is a long-lived, self-restarting LogSource. Subscribe
// returns only when ctx is cancelled.
type NotificationSource interface {
	Subscribe(ctx context.Context, kind entity.NotificationKind, deliver func([]entity.Notification))
}
