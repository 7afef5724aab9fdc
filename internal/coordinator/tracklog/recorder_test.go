package tracklog_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog/sqlite"
	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

type failingOutputs map[string]error

func (f failingOutputs) ReadStepOutput(_ context.Context, jobID string) (string, error) {
	if err := f[jobID]; err != nil {
		return "", err
	}
	return "https://outputs.example/" + jobID, nil
}

func newRecorder(t *testing.T) (*tracklog.Recorder, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "tracklog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return tracklog.NewRecorder(repo), repo
}

func newEngine(t *testing.T, opts ...tracking.Option) *tracking.Engine {
	t.Helper()
	opts = append([]tracking.Option{tracking.WithGraceDelay(10 * time.Millisecond)}, opts...)
	e := tracking.NewEngine(nil, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func flush(t *testing.T, r *tracklog.Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

// completions signals after every other observer has seen a completed step.
type completions chan int

func (completions) SessionOpened(string)                                                      {}
func (completions) SessionSubmitted(string, string)                                           {}
func (completions) NotificationHandled(entity.NotificationKind, tracking.NotificationOutcome) {}
func (completions) OutputFallback(string, int, error)                                         {}
func (completions) SessionClosed(string, tracking.Outcome)                                    {}
func (completions) SubscriptionsChanged(bool)                                                 {}

func (c completions) StepAdvanced(_ string, idx int, status tracking.StepStatus) {
	if status == tracking.StatusCompleted {
		c <- idx
	}
}

func (c completions) wait(t *testing.T, idx int) {
	t.Helper()
	select {
	case got := <-c:
		require.Equal(t, idx, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("step %d not completed", idx)
	}
}

type row struct {
	Status tracklog.Status
	Step   string
}

func history(t *testing.T, repo *sqlite.Repository, sessionID string) ([]row, []*tracklog.Entry) {
	t.Helper()
	entries, err := repo.History(context.Background(), sessionID)
	require.NoError(t, err)
	rows := make([]row, len(entries))
	for i, e := range entries {
		rows[i] = row{e.Status, e.CurrentStep}
	}
	return rows, entries
}

func TestRecorderWritesSessionLifecycle(t *testing.T) {
	rec, repo := newRecorder(t)
	done := make(completions, entity.StepCount)
	e := newEngine(t,
		tracking.WithObserver(tracking.Observers(rec, done)),
		tracking.WithOutputReader(failingOutputs{"B": errors.New("gateway timeout")}),
	)

	_, err := e.RegisterSession("s1")
	require.NoError(t, err)
	require.NoError(t, e.RecordSubmission("s1", "M", []string{"A", "B", "C"}, []string{"a", "b", "c"}))

	e.OnAccepted(entity.Notification{Kind: entity.KindAccepted, MultihopID: "M", StepIndex: 0})
	for i := 0; i < entity.StepCount; i++ {
		e.OnCompleted(entity.Notification{Kind: entity.KindCompleted, MultihopID: "M", StepIndex: i})
		done.wait(t, i)
	}
	require.Eventually(t, func() bool { return e.ActiveSessions() == 0 }, 2*time.Second, 5*time.Millisecond)
	flush(t, rec)

	rows, entries := history(t, repo, "s1")
	require.Equal(t, []row{
		{tracklog.StatusSubmitted, ""},
		{tracklog.StatusStepAccepted, "step-1"},
		{tracklog.StatusStepCompleted, "step-1"},
		{tracklog.StatusOutputMissing, "step-2"},
		{tracklog.StatusStepCompleted, "step-2"},
		{tracklog.StatusStepCompleted, "step-3"},
		{tracklog.StatusCompleted, ""},
	}, rows)
	for _, entry := range entries {
		require.Equal(t, "M", entry.MultihopID, entry.Status)
	}
	require.Contains(t, entries[3].ErrorMessages, "gateway timeout")
}

func TestRecorderMapsCloseOutcomes(t *testing.T) {
	rec, repo := newRecorder(t)
	e := newEngine(t, tracking.WithObserver(rec))

	_, err := e.RegisterSession("failed")
	require.NoError(t, err)
	e.Fail("failed", faults.ErrStepCountMismatch)

	_, err = e.RegisterSession("left")
	require.NoError(t, err)
	require.NoError(t, e.RecordSubmission("left", "M2", []string{"D", "E", "F"}, []string{"d", "e", "f"}))
	e.CloseSession("left")
	flush(t, rec)

	rows, entries := history(t, repo, "failed")
	require.Equal(t, []row{{tracklog.StatusFailed, ""}}, rows)
	require.Empty(t, entries[0].MultihopID)

	rows, entries = history(t, repo, "left")
	require.Equal(t, []row{
		{tracklog.StatusSubmitted, ""},
		{tracklog.StatusAbandoned, ""},
	}, rows)
	require.Equal(t, "M2", entries[1].MultihopID)
}

type gatedRepo struct {
	gate chan struct{}

	mu      sync.Mutex
	entries []*tracklog.Entry
}

func (g *gatedRepo) Save(_ context.Context, e *tracklog.Entry) error {
	<-g.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, e)
	return nil
}

func TestRecorderDoesNotBlockOnSlowStore(t *testing.T) {
	repo := &gatedRepo{gate: make(chan struct{})}
	rec := tracklog.NewRecorder(repo)

	returned := make(chan struct{})
	go func() {
		rec.SessionSubmitted("s1", "M")
		rec.StepAdvanced("s1", 0, tracking.StatusAccepted)
		rec.SessionClosed("s1", tracking.OutcomeAbandoned)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("observer callbacks waited on the store")
	}

	close(repo.gate)
	flush(t, rec)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.entries, 3)
	require.Equal(t, tracklog.StatusSubmitted, repo.entries[0].Status)
	require.Equal(t, tracklog.StatusAbandoned, repo.entries[2].Status)

	// Entries after close are discarded.
	rec.SessionSubmitted("s2", "M2")
	require.Len(t, repo.entries, 3)
}
