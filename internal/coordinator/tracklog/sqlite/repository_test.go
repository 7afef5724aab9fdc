package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
)

func openTemp(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "tracklog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndGetLatest(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := tracklog.NewEntry(ctx, "s1", tracklog.StatusStarted, "", `{"instruction":"x"}`, nil)
	first.UpdatedAt = base
	second := tracklog.NewEntry(ctx, "s1", tracklog.StatusSubmitted, "", "", nil)
	second.MultihopID = "0xabc"
	second.UpdatedAt = base.Add(time.Second)

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	latest, err := repo.GetLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, tracklog.StatusSubmitted, latest.Status)
	require.Equal(t, "0xabc", latest.MultihopID)
	require.Empty(t, latest.Payload)
	require.Equal(t, "[]", latest.ErrorMessages)
	require.True(t, latest.UpdatedAt.Equal(base.Add(time.Second)))
}

func TestHistoryKeepsWriteOrder(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	for _, st := range []tracklog.Status{tracklog.StatusStarted, tracklog.StatusStepDone, tracklog.StatusFailed} {
		require.NoError(t, repo.Save(ctx, tracklog.NewEntry(ctx, "s1", st, "", "", []string{"boom"})))
	}
	require.NoError(t, repo.Save(ctx, tracklog.NewEntry(ctx, "other", tracklog.StatusStarted, "", "", nil)))

	history, err := repo.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, tracklog.StatusStarted, history[0].Status)
	require.Equal(t, tracklog.StatusFailed, history[2].Status)
	require.Equal(t, `["boom"]`, history[2].ErrorMessages)
}

func TestGetLatestUnknownSession(t *testing.T) {
	repo := openTemp(t)
	_, err := repo.GetLatest(context.Background(), "nope")
	require.Error(t, err)
}
