package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/config"
	"vrpspd/internal/export"
	"vrpspd/internal/store"
)

const square = `NAME : SQ5
DIMENSION : 5
CAPACITY : 10
NODE_COORD_SECTION
1 0 0
2 0 10
3 10 10
4 10 0
5 5 5
PICKUP_AND_DELIVERY_SECTION
1 0 0 0 0 0 0
2 0 0 0 0 0 5
3 0 0 0 0 0 5
4 0 0 0 0 3 0
5 0 0 0 0 2 1
DEPOT_SECTION
1
-1
EOF
`

func TestRunWritesExecutionFiles(t *testing.T) {
	root := t.TempDir()
	instDir := filepath.Join(root, "instances")
	require.NoError(t, os.MkdirAll(instDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(instDir, "SQ5.vrpspd"), []byte(square), 0o644))

	cfg := config.Default()
	cfg.InstanceDir = instDir
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.Storage.SQLitePath = filepath.Join(root, "runs.db")
	cfg.Search.Executions = 2
	cfg.Search.TimeBudget = 2 * time.Second
	cfg.Search.SubproblemBudget = 100 * time.Millisecond
	cfg.Search.MaxRounds = 2
	cfg.Search.Seed = 5

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	require.NoError(t, run(context.Background(), options{cfg: cfg, instances: []string{"SQ5"}, parallel: 2}, logger))

	stamps, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, stamps, 1)
	for k := 1; k <= 2; k++ {
		dir := export.ExecDir(cfg.OutputDir, stamps[0].Name(), "SQ5", k)
		raw, err := os.ReadFile(filepath.Join(dir, "SQ5.cnt"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(raw), "BEST COST"))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var best bool
		for _, e := range entries {
			best = best || strings.HasSuffix(e.Name(), "best.sol")
		}
		assert.True(t, best, "missing best snapshot in %s", dir)
	}

	st, err := store.NewSQLite(context.Background(), cfg.Storage.SQLitePath)
	require.NoError(t, err)
	defer st.Close()
	runs, _, err := st.ListRuns(context.Background(), "SQ5", "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "done", r.Status)
		require.NotNil(t, r.Summary)
	}
}

func TestRunRejectsUnknownInstance(t *testing.T) {
	cfg := config.Default()
	cfg.InstanceDir = t.TempDir()
	err := run(context.Background(), options{cfg: cfg, instances: []string{"CMT9X"}, parallel: 1}, log.New())
	assert.Error(t, err)
}
