package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

type fakeDecomposer struct {
	result entity.Decomposition
	err    error
}

func (f fakeDecomposer) Decompose(context.Context, string) (entity.Decomposition, error) {
	return f.result, f.err
}

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  int
	got    []entity.StepSpec
	result *entity.Submission
	err    error
	before func()
}

func (f *fakeSubmitter) Submit(_ context.Context, steps []entity.StepSpec) (*entity.Submission, error) {
	f.mu.Lock()
	f.calls++
	f.got = steps
	f.mu.Unlock()
	if f.before != nil {
		f.before()
	}
	return f.result, f.err
}

type memLog struct {
	mu      sync.Mutex
	entries []*tracklog.Entry
}

func (m *memLog) Save(_ context.Context, e *tracklog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLog) statuses() []tracklog.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tracklog.Status, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Status
	}
	return out
}

var (
	testDecomposition = entity.Decomposition{Step1: "write copy", Step2: "design page", Step3: "code site"}
	testPolicy        = Policy{
		Providers:      []string{"0x01", "0x02", "0x03"},
		StepBudget:     big.NewInt(100),
		AcceptWindow:   time.Hour,
		CompleteWindow: 24 * time.Hour,
	}
)

func newEngine(t *testing.T) *tracking.Engine {
	t.Helper()
	e := tracking.NewEngine(nil, tracking.WithGraceDelay(10*time.Millisecond))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

// drain collects events until the stream closes.
func drain(t *testing.T, s *tracking.Session) []tracking.Event {
	t.Helper()
	var out []tracking.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream not closed, got %d events", len(out))
		}
	}
}

func take(t *testing.T, s *tracking.Session, n int) []tracking.Event {
	t.Helper()
	out := make([]tracking.Event, 0, n)
	for len(out) < n {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "stream closed after %d events", len(out))
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestRunRecordsSubmission(t *testing.T) {
	engine := newEngine(t)
	s, err := engine.RegisterSession("s1")
	require.NoError(t, err)

	sub := &fakeSubmitter{result: &entity.Submission{TxHash: "0xtx", MultihopID: "M", StepIDs: []string{"A", "B", "C"}}}
	log := &memLog{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy,
		WithTrackLog(log), WithClock(func() time.Time { return now }))

	require.NoError(t, c.Run(context.Background(), "s1", "build a landing page"))

	events := take(t, s, 7)
	require.Equal(t, tracking.NewDecomposing("build a landing page"), events[0])
	require.Equal(t, tracking.NewProgress(msgDecomposed), events[1])
	require.Equal(t, tracking.NewProgress(msgSubmitting), events[2])
	require.Equal(t, tracking.NewMultihopCreated("M"), events[3])
	require.Equal(t, tracking.NewJobCreated("A", 0, "write copy"), events[4])
	require.Equal(t, tracking.NewJobCreated("B", 1, "design page"), events[5])
	require.Equal(t, tracking.NewJobCreated("C", 2, "code site"), events[6])

	snap := s.Snapshot()
	require.Equal(t, "M", snap.MultihopID)
	require.False(t, snap.Closed)

	require.Len(t, sub.got, 3)
	for i, spec := range sub.got {
		require.Equal(t, testPolicy.Providers[i], spec.Provider)
		require.Equal(t, now.Add(time.Hour), spec.AcceptDeadline)
	}

	require.Equal(t, []tracklog.Status{
		tracklog.StatusStarted,
		tracklog.StatusStepDone,
		tracklog.StatusStepDone,
		tracklog.StatusStepDone,
		tracklog.StatusStepDone,
	}, log.statuses())
}

func TestRunStepCountMismatchEndsSession(t *testing.T) {
	engine := newEngine(t)
	s, err := engine.RegisterSession("s1")
	require.NoError(t, err)

	sub := &fakeSubmitter{err: fmt.Errorf("%w: got 2 job created events for 3 steps", faults.ErrStepCountMismatch)}
	log := &memLog{}
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy, WithTrackLog(log))

	err = c.Run(context.Background(), "s1", "x")
	require.ErrorIs(t, err, faults.ErrStepCountMismatch)

	events := drain(t, s)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, tracking.EventError, last.EventType())
	for _, ev := range events {
		require.NotEqual(t, tracking.EventMultihopCreated, ev.EventType())
	}

	_, ok := engine.Session("s1")
	require.False(t, ok)
	require.Zero(t, engine.ActiveSessions())
	require.Equal(t, tracklog.StatusFailed, log.statuses()[len(log.statuses())-1])
}

func TestRunDecompositionFailure(t *testing.T) {
	engine := newEngine(t)
	s, err := engine.RegisterSession("s1")
	require.NoError(t, err)

	sub := &fakeSubmitter{}
	c := New(engine, fakeDecomposer{err: errors.New("model unavailable")}, sub, testPolicy)

	err = c.Run(context.Background(), "s1", "x")
	require.ErrorIs(t, err, faults.ErrDecomposition)
	require.Zero(t, sub.calls)

	events := drain(t, s)
	require.Equal(t, []tracking.Event{
		tracking.NewDecomposing("x"),
		tracking.NewError("decomposition failed: model unavailable"),
	}, events)
}

func TestRunListenerLeftBeforeSubmission(t *testing.T) {
	engine := newEngine(t)
	_, err := engine.RegisterSession("s1")
	require.NoError(t, err)
	engine.CloseSession("s1")

	sub := &fakeSubmitter{}
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy)

	err = c.Run(context.Background(), "s1", "x")
	require.ErrorIs(t, err, faults.ErrSessionNotFound)
	require.Zero(t, sub.calls)
}

func TestRunLateConfirmationIgnored(t *testing.T) {
	engine := newEngine(t)
	_, err := engine.RegisterSession("s1")
	require.NoError(t, err)

	sub := &fakeSubmitter{
		result: &entity.Submission{MultihopID: "M", StepIDs: []string{"A", "B", "C"}},
		before: func() { engine.CloseSession("s1") },
	}
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy)

	err = c.Run(context.Background(), "s1", "x")
	require.ErrorIs(t, err, faults.ErrSessionNotFound)
	require.Equal(t, 1, sub.calls)
	require.Zero(t, engine.ActiveSessions())
	require.False(t, engine.SubscriptionsActive())
}

func TestRunKeepsAlreadyTrackedSession(t *testing.T) {
	engine := newEngine(t)
	s, err := engine.RegisterSession("s1")
	require.NoError(t, err)
	require.NoError(t, engine.RecordSubmission("s1", "M0", []string{"A", "B", "C"}, []string{"a", "b", "c"}))

	sub := &fakeSubmitter{result: &entity.Submission{MultihopID: "M1", StepIDs: []string{"D", "E", "F"}}}
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy)

	err = c.Run(context.Background(), "s1", "x")
	require.ErrorIs(t, err, faults.ErrAlreadySubmitted)

	snap := s.Snapshot()
	require.False(t, snap.Closed)
	require.Equal(t, "M0", snap.MultihopID)
	require.Equal(t, 1, engine.ActiveSessions())
}

func TestRunUnclassifiedFailureEndsSession(t *testing.T) {
	engine := newEngine(t)
	s, err := engine.RegisterSession("s1")
	require.NoError(t, err)

	sub := &fakeSubmitter{err: errors.New("rpc unavailable")}
	c := New(engine, fakeDecomposer{result: testDecomposition}, sub, testPolicy)

	require.Error(t, c.Run(context.Background(), "s1", "x"))

	events := drain(t, s)
	require.Equal(t, tracking.EventError, events[len(events)-1].EventType())
	require.Zero(t, engine.ActiveSessions())
}
