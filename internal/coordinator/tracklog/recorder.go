package tracklog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

const (
	saveTimeout = 2 * time.Second
	queueSize   = 1024
)

// Recorder appends engine transitions to a Repository. Entries are queued and
// written in order by a single goroutine, so engine callbacks never wait on
// the store. When the queue is full the entry is dropped and logged.
type Recorder struct {
	tracking.NopObserver

	repo  Repository
	queue chan *Entry
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	multihops map[string]string
}

// NewRecorder returns an observer writing to repo. Call Close to flush it.
func NewRecorder(repo Repository) *Recorder {
	r := &Recorder{
		repo:      repo,
		queue:     make(chan *Entry, queueSize),
		done:      make(chan struct{}),
		multihops: make(map[string]string),
	}
	go r.loop()
	return r
}

func (r *Recorder) SessionSubmitted(sessionID, multihopID string) {
	r.mu.Lock()
	r.multihops[sessionID] = multihopID
	r.mu.Unlock()
	r.save(sessionID, StatusSubmitted, "", nil)
}

func (r *Recorder) StepAdvanced(sessionID string, stepIndex int, status tracking.StepStatus) {
	st := StatusStepAccepted
	if status == tracking.StatusCompleted {
		st = StatusStepCompleted
	}
	r.save(sessionID, st, fmt.Sprintf("step-%d", stepIndex+1), nil)
}

func (r *Recorder) OutputFallback(sessionID string, stepIndex int, err error) {
	r.save(sessionID, StatusOutputMissing, fmt.Sprintf("step-%d", stepIndex+1), []string{err.Error()})
}

func (r *Recorder) SessionClosed(sessionID string, outcome tracking.Outcome) {
	st := StatusAbandoned
	switch outcome {
	case tracking.OutcomeCompleted:
		st = StatusCompleted
	case tracking.OutcomeFailed:
		st = StatusFailed
	}
	r.save(sessionID, st, "", nil)

	r.mu.Lock()
	delete(r.multihops, sessionID)
	r.mu.Unlock()
}

// Close stops accepting entries and waits until the queued ones are written
// or ctx expires. Calling it again only waits.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tracklog: flush: %w", ctx.Err())
	}
}

func (r *Recorder) save(sessionID string, status Status, step string, errs []string) {
	entry := NewEntry(context.Background(), sessionID, status, step, "", errs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	entry.MultihopID = r.multihops[sessionID]
	select {
	case r.queue <- entry:
	default:
		slog.Warn("track log queue full, entry dropped", "session_id", sessionID, "status", status)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.repo.Save(ctx, entry); err != nil {
			slog.Warn("track log write failed", "session_id", entry.SessionID, "status", entry.Status, "error", err)
		}
		cancel()
	}
}
