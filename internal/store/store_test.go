package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

func newRun(instance string) model.Run {
	return model.Run{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		Instance:           instance,
		Status:             model.RunRunning,
		Oracle:             "search",
		Seed:               7,
		TimeBudgetMs:       60000,
		SubproblemBudgetMs: 5000,
		StartedAt:          time.Now().UTC().Truncate(time.Second),
	}
}

// exercise runs the same scenario against every implementation.
func exercise(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	a, b, c := newRun("CMT1X"), newRun("CON3-0"), newRun("CMT1X")
	for _, r := range []model.Run{a, b, c} {
		require.NoError(t, s.CreateRun(ctx, r))
	}
	assert.Error(t, s.CreateRun(ctx, a))

	got, err := s.GetRun(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Instance, got.Instance)
	assert.Nil(t, got.FinishedAt)
	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	page, next, err := s.ListRuns(ctx, "CMT1X", "", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, a.ID, page[0].ID)
	assert.Equal(t, a.ID, next)
	page, next, err = s.ListRuns(ctx, "CMT1X", next, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, c.ID, page[0].ID)
	assert.Empty(t, next)
	all, _, err := s.ListRuns(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	for _, round := range []int{3, 1, 2} {
		require.NoError(t, s.SaveSnapshot(ctx, model.Snapshot{
			RunID: a.ID, Instance: "CMT1X", Round: round, Kind: model.KindOracle,
			BestCost: 100, TotalCost: 100 + float64(round), Status: "Optimal",
			Routes: [][]int{{0, 1, 2, 0}, {0, 3, 0}},
		}))
	}
	assert.ErrorIs(t, s.SaveSnapshot(ctx, model.Snapshot{RunID: "nope"}), ErrNotFound)
	snaps, err := s.ListSnapshots(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{snaps[0].Round, snaps[1].Round, snaps[2].Round})
	assert.Equal(t, [][]int{{0, 1, 2, 0}, {0, 3, 0}}, snaps[0].Routes)
	_, err = s.ListSnapshots(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	sum := &model.RunSummary{BestCost: 466.77, Rounds: 140, RoundToBest: 31}
	require.NoError(t, s.FinishRun(ctx, a.ID, model.RunDone, "", sum, time.Now()))
	got, err = s.GetRun(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunDone, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 140, got.Summary.Rounds)
	assert.ErrorIs(t, s.FinishRun(ctx, "nope", model.RunFailed, "x", nil, time.Now()), ErrNotFound)

	cfg, err := s.GetOptimizerConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)
	require.NoError(t, s.SaveOptimizerConfig(ctx, map[string]any{"oracle": "search"}))
	require.NoError(t, s.SaveOptimizerConfig(ctx, map[string]any{"oracle": "highs", "timeBudgetMs": float64(1000)}))
	cfg, err = s.GetOptimizerConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"oracle": "highs", "timeBudgetMs": float64(1000)}, cfg)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
	// reopening keeps data and does not re-run the version insert
	require.NoError(t, s.Migrate(context.Background()))
	var versions int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions))
	assert.Equal(t, 1, versions)
}
