package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

// A watch that ran at least this long resets the restart backoff.
const healthyWatch = 30 * time.Second

var errWatchEnded = errors.New("watch ended")

// Subscriber keeps a LogSource watch running until its context is cancelled,
// restarting it with exponential backoff whenever the transport fails.
type Subscriber struct {
	source       ports.LogSource
	buildBackoff func() backoff.BackOff
}

var _ ports.NotificationSource = (*Subscriber)(nil)

// NewSubscriber wraps source. factory may be nil.
func NewSubscriber(source ports.LogSource, factory func() backoff.BackOff) *Subscriber {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	return &Subscriber{source: source, buildBackoff: factory}
}

// Subscribe blocks until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, kind entity.NotificationKind, deliver func([]entity.Notification)) {
	b := backoff.WithContext(s.buildBackoff(), ctx)

	watch := func() error {
		started := time.Now()
		err := s.source.Watch(ctx, kind, deliver)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if time.Since(started) >= healthyWatch {
			b.Reset()
		}
		if err == nil {
			err = errWatchEnded
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("notification watch failed, restarting", "kind", kind, "error", err, "retry_in", wait)
	}

	slog.Info("notification subscription started", "kind", kind)
	err := backoff.RetryNotify(watch, b, notify)
	if err != nil && ctx.Err() == nil {
		slog.Error("notification subscription gave up", "kind", kind, "error", err)
		return
	}
	slog.Info("notification subscription stopped", "kind", kind)
}
