// Package tracking correlates registry notifications with live sessions and
// streams each session's progress to its listener.
//
// One Engine multiplexes every session over a single pair of shared
// subscriptions (accepted and completed). The subscriptions are started by the
// first RecordSubmission and stopped when the last submitted session closes.
// Notification delivery is at-least-once and unordered, so every transition
// is guarded by the step's current status: a step moves pending → accepted →
// completed at most once per transition, and anything else is absorbed.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
)

const (
	DefaultGraceDelay        = 5 * time.Second
	DefaultOutputReadTimeout = 10 * time.Second
)

// PlaceholderOutput is the output reference recorded when the real one could
// not be read.
func PlaceholderOutput(jobID string) string {
	return "output-unavailable://" + jobID
}

// ExecutorLabel names the agent assigned to a step.
func ExecutorLabel(stepIndex int) string {
	return fmt.Sprintf("Agent %d", stepIndex+1)
}

type jobRef struct {
	session *Session
	index   int
}

// Engine owns the session table and the shared notification subscriptions.
type Engine struct {
	source        ports.NotificationSource
	outputs       ports.OutputReader
	observer      Observer
	graceDelay    time.Duration
	outputTimeout time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	sessions   map[string]*Session
	byMultihop map[string]*Session
	byJob      map[string]jobRef
	refs       int
	stopSubs   context.CancelFunc

	subs     sync.WaitGroup
	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutputReader sets where completed steps' output references come from.
// Without one every completed step records a placeholder.
func WithOutputReader(r ports.OutputReader) Option {
	return func(e *Engine) { e.outputs = r }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithGraceDelay sets how long a finished session stays open so the
// all_complete event can reach the listener.
func WithGraceDelay(d time.Duration) Option {
	return func(e *Engine) { e.graceDelay = d }
}

func WithOutputReadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.outputTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine reading notifications from source.
func NewEngine(source ports.NotificationSource, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		source:        source,
		observer:      NopObserver{},
		graceDelay:    DefaultGraceDelay,
		outputTimeout: DefaultOutputReadTimeout,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		sessions:      make(map[string]*Session),
		byMultihop:    make(map[string]*Session),
		byJob:         make(map[string]jobRef),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterSession creates a session row. An empty id is replaced by a fresh
// one.
func (e *Engine) RegisterSession(sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	e.mu.Lock()
	if _, exists := e.sessions[sessionID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("register %q: %w", sessionID, faults.ErrDuplicateSession)
	}
	s := newSession(sessionID, e.now())
	e.sessions[sessionID] = s
	e.mu.Unlock()

	e.observer.SessionOpened(sessionID)
	return s, nil
}

// Session returns the live session with the given id.
func (e *Engine) Session(sessionID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// ActiveSessions is the number of sessions in the table.
func (e *Engine) ActiveSessions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// SubscriptionsActive reports whether the shared subscriptions are running.
func (e *Engine) SubscriptionsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopSubs != nil
}

// RecordSubmission attaches the ledger identifiers to a session, announces
// them to the listener and makes the session visible to correlation. It
// fails with ErrSessionNotFound when the session was closed in the meantime.
func (e *Engine) RecordSubmission(sessionID, multihopID string, stepIDs, descriptions []string) error {
	if multihopID == "" {
		return fmt.Errorf("record %q: empty multihop id: %w", sessionID, faults.ErrMissingConfirmationEvent)
	}
	if len(stepIDs) != entity.StepCount || len(descriptions) != entity.StepCount {
		return fmt.Errorf("record %q: %d step ids, %d descriptions: %w",
			sessionID, len(stepIDs), len(descriptions), faults.ErrStepCountMismatch)
	}

	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("record %q: %w", sessionID, faults.ErrSessionNotFound)
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		e.mu.Unlock()
		return fmt.Errorf("record %q: %w", sessionID, faults.ErrSessionNotFound)
	case s.multihopID != "":
		s.mu.Unlock()
		e.mu.Unlock()
		return fmt.Errorf("record %q: %w", sessionID, faults.ErrAlreadySubmitted)
	}
	s.multihopID = multihopID
	s.stepIDs = append([]string(nil), stepIDs...)
	s.descriptions = append([]string(nil), descriptions...)
	s.subscribed = true
	s.emitLocked(NewMultihopCreated(multihopID))
	for i, id := range s.stepIDs {
		s.emitLocked(NewJobCreated(id, i, s.descriptions[i]))
	}
	s.mu.Unlock()

	e.byMultihop[multihopID] = s
	for i, id := range stepIDs {
		e.byJob[id] = jobRef{session: s, index: i}
	}
	e.refs++
	started := e.ensureSubscriptionsLocked()
	e.mu.Unlock()

	slog.Info("tracking session", "session_id", sessionID, "multihop_id", multihopID, "job_ids", stepIDs)
	e.observer.SessionSubmitted(sessionID, multihopID)
	if started {
		e.observer.SubscriptionsChanged(true)
	}
	return nil
}

// OnAccepted advances a pending step to accepted.
func (e *Engine) OnAccepted(n entity.Notification) {
	s, idx, outcome := e.resolve(n)
	if outcome != NotificationApplied {
		e.observer.NotificationHandled(entity.KindAccepted, outcome)
		return
	}

	s.mu.Lock()
	if s.closed || s.statuses[idx] != StatusPending {
		s.mu.Unlock()
		e.observer.NotificationHandled(entity.KindAccepted, NotificationDuplicate)
		return
	}
	s.statuses[idx] = StatusAccepted
	jobID := s.stepIDs[idx]
	s.emitLocked(NewJobAccepted(jobID, idx, ExecutorLabel(idx)))
	s.mu.Unlock()

	slog.Info("step accepted", "session_id", s.ID, "step", idx, "job_id", jobID)
	e.observer.NotificationHandled(entity.KindAccepted, NotificationApplied)
	e.observer.StepAdvanced(s.ID, idx, StatusAccepted)
}

// OnCompleted completes a step, reading its output reference first. The read
// runs off the caller's goroutine so a slow store never holds up other
// notifications.
func (e *Engine) OnCompleted(n entity.Notification) {
	s, idx, outcome := e.resolve(n)
	if outcome != NotificationApplied {
		e.observer.NotificationHandled(entity.KindCompleted, outcome)
		return
	}

	s.mu.Lock()
	if s.closed || s.statuses[idx] == StatusCompleted || s.completing[idx] {
		s.mu.Unlock()
		e.observer.NotificationHandled(entity.KindCompleted, NotificationDuplicate)
		return
	}
	s.completing[idx] = true
	jobID := s.stepIDs[idx]
	s.mu.Unlock()

	e.observer.NotificationHandled(entity.KindCompleted, NotificationApplied)

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		output := e.readOutput(s.ID, idx, jobID)
		e.completeStep(s, idx, output)
	}()
}

func (e *Engine) completeStep(s *Session, idx int, output string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.completing[idx] = false
	s.statuses[idx] = StatusCompleted
	s.outputs[idx] = output
	jobID := s.stepIDs[idx]
	s.emitLocked(NewJobCompleted(jobID, idx, output))

	finished := s.allCompletedLocked()
	if finished {
		s.emitLocked(NewAllComplete(append([]string(nil), s.outputs[:]...)))
	}
	s.mu.Unlock()

	slog.Info("step completed", "session_id", s.ID, "step", idx, "job_id", jobID, "output", output)
	e.observer.StepAdvanced(s.ID, idx, StatusCompleted)

	if finished {
		slog.Info("all steps completed", "session_id", s.ID)
		id := s.ID
		time.AfterFunc(e.graceDelay, func() { e.closeSession(id, OutcomeCompleted) })
	}
}

func (e *Engine) readOutput(sessionID string, idx int, jobID string) string {
	if e.outputs == nil {
		return PlaceholderOutput(jobID)
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.outputTimeout)
	defer cancel()

	ref, err := e.outputs.ReadStepOutput(ctx, jobID)
	if err == nil && ref == "" {
		err = fmt.Errorf("empty output reference")
	}
	if err != nil {
		err = fmt.Errorf("%w: job %s: %w", faults.ErrOutputRetrieval, jobID, err)
		slog.Warn("using placeholder output", "session_id", sessionID, "step", idx, "job_id", jobID, "error", err)
		e.observer.OutputFallback(sessionID, idx, err)
		return PlaceholderOutput(jobID)
	}
	return ref
}

// resolve finds the session and step a notification refers to. A multihop id
// is authoritative; otherwise the job id is looked up.
func (e *Engine) resolve(n entity.Notification) (*Session, int, NotificationOutcome) {
	var (
		s   *Session
		idx = n.StepIndex
	)

	e.mu.RLock()
	switch {
	case n.MultihopID != "":
		s = e.byMultihop[n.MultihopID]
	case n.JobID != "":
		if ref, ok := e.byJob[n.JobID]; ok {
			s, idx = ref.session, ref.index
		}
	}
	e.mu.RUnlock()

	if s == nil {
		slog.Debug("ignoring foreign notification", "kind", n.Kind, "multihop_id", n.MultihopID, "job_id", n.JobID)
		return nil, 0, NotificationForeign
	}
	if idx < 0 || idx >= entity.StepCount {
		slog.Warn("ignoring notification with invalid step index", "session_id", s.ID, "step", idx)
		return nil, 0, NotificationInvalid
	}
	return s, idx, NotificationApplied
}

// Fail reports err to the listener and closes the session at once.
func (e *Engine) Fail(sessionID string, err error) {
	s, ok := e.Session(sessionID)
	if !ok {
		return
	}
	slog.Error("session failed", "session_id", sessionID, "error", err)
	s.Emit(NewError(faults.Reason(err)))
	e.closeSession(sessionID, OutcomeFailed)
}

// CloseSession releases the session's sink and removes it from the table.
// Calling it again is a no-op.
func (e *Engine) CloseSession(sessionID string) {
	e.closeSession(sessionID, OutcomeAbandoned)
}

func (e *Engine) closeSession(sessionID string, outcome Outcome) bool {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.sessions, sessionID)

	s.mu.Lock()
	if s.multihopID != "" && e.byMultihop[s.multihopID] == s {
		delete(e.byMultihop, s.multihopID)
	}
	for _, id := range s.stepIDs {
		if ref, ok := e.byJob[id]; ok && ref.session == s {
			delete(e.byJob, id)
		}
	}
	held := s.subscribed
	s.subscribed = false
	if s.allCompletedLocked() {
		outcome = OutcomeCompleted
	}
	s.mu.Unlock()

	stopped := false
	if held {
		e.refs--
		if e.refs == 0 {
			stopped = e.stopSubscriptionsLocked()
		}
	}
	e.mu.Unlock()

	s.close()
	slog.Info("session closed", "session_id", sessionID, "outcome", outcome)
	e.observer.SessionClosed(sessionID, outcome)
	if stopped {
		e.observer.SubscriptionsChanged(false)
	}
	return true
}

func (e *Engine) ensureSubscriptionsLocked() bool {
	if e.stopSubs != nil || e.source == nil {
		return false
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.stopSubs = cancel

	for _, kind := range []entity.NotificationKind{entity.KindAccepted, entity.KindCompleted} {
		e.subs.Add(1)
		go func(kind entity.NotificationKind) {
			defer e.subs.Done()
			e.source.Subscribe(ctx, kind, e.deliver(kind))
		}(kind)
	}
	slog.Info("notification subscriptions started")
	return true
}

func (e *Engine) stopSubscriptionsLocked() bool {
	if e.stopSubs == nil {
		return false
	}
	e.stopSubs()
	e.stopSubs = nil
	slog.Info("notification subscriptions stopped")
	return true
}

func (e *Engine) deliver(kind entity.NotificationKind) func([]entity.Notification) {
	return func(batch []entity.Notification) {
		for _, n := range batch {
			n.Kind = kind
			switch kind {
			case entity.KindAccepted:
				e.OnAccepted(n)
			case entity.KindCompleted:
				e.OnCompleted(n)
			}
		}
	}
}

// Shutdown closes every live session, stops the subscriptions and waits for
// in-flight work until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.closeSession(id, OutcomeAbandoned)
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.subs.Wait()
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tracking: shutdown: %w", ctx.Err())
	}
}
