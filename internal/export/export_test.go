package export

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

func testInstance(t *testing.T, name string) *model.Instance {
	t.Helper()
	nodes := []model.Node{{ID: 0}, {ID: 1, Delivery: 4, Pickup: 1}, {ID: 2, Delivery: 2, Pickup: 3}, {ID: 3, Pickup: 5}, {ID: 4, Delivery: 6}}
	dist := [][]float64{
		{0, 12.5, 30, 22, 17},
		{12.5, 0, 19, 27, 8},
		{30, 19, 0, 14, 23},
		{22, 27, 14, 0, 31},
		{17, 8, 23, 31, 0},
	}
	in, err := model.NewInstance(name, nodes, dist, 10)
	require.NoError(t, err)
	return in
}

func TestSolRoundTrip(t *testing.T) {
	in := testInstance(t, "CMT-test")
	rng := rand.New(rand.NewSource(1))
	sol := opt.NewLocalSearch(in, rng).Run(opt.Construct(in, rng, 0.99))
	require.NoError(t, sol.Validate(in))

	snap := Snapshot(in, "run-1", opt.Event{
		Kind:       model.KindLocalSearch,
		Round:      7,
		Elapsed:    1500 * time.Millisecond,
		BestCost:   sol.Cost(),
		Solution:   sol,
		CliqueSize: 0,
	})
	var buf bytes.Buffer
	require.NoError(t, WriteSol(&buf, snap))
	assert.True(t, strings.HasPrefix(buf.String(), "Best cost:"))
	assert.Contains(t, buf.String(), "Route 1:           0")

	back, err := ParseSol(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Routes, back.Routes)
	assert.Equal(t, snap.Status, back.Status)
	assert.InDelta(t, snap.TotalCost, back.TotalCost, 0.005)
	assert.InDelta(t, 1.5, back.ProcessSec, 0.005)

	// the node sequences alone reproduce the cost
	rebuilt := opt.NewSolution(in, Sequences(back))
	require.NoError(t, rebuilt.Validate(in))
	assert.InDelta(t, snap.TotalCost, rebuilt.Cost(), opt.CostTolerance)
}

func TestSnapshotScalesDethloffCosts(t *testing.T) {
	in := testInstance(t, "SCA3-1")
	sol := opt.NewSolution(in, [][]int{{1, 2}, {3}, {4}})
	snap := Snapshot(in, "", opt.Event{Kind: model.KindOracle, BestCost: 20000, Solution: sol})
	assert.InDelta(t, sol.Cost()/10000, snap.TotalCost, 1e-12)
	assert.Equal(t, 2.0, snap.BestCost)
	assert.Equal(t, []int{0, 1, 2, 0}, snap.Routes[0])
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "CMT1X-000000.sol", FileName("CMT1X", 0, model.KindConstruct))
	assert.Equal(t, "CMT1X-000012.sol", FileName("CMT1X", 12, model.KindOracle))
	assert.Equal(t, "CMT1X-000012ls.sol", FileName("CMT1X", 12, model.KindLocalSearch))
	assert.Equal(t, "CMT1X-000040best.sol", FileName("CMT1X", 40, model.KindBest))
	assert.Equal(t, filepath.Join("out", "2024-01-02_03-04-05", "VDNS", "CMT1X", "exec_3"),
		ExecDir("out", "2024-01-02_03-04-05", "CMT1X", 3))
}

func TestSummaryFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSummaryFile(dir, "CMT1X", model.RunSummary{
		BestCost: 466.77, ProcessSec: 60.2, TimeToBestSec: 12.5, Rounds: 140, RoundToBest: 31, Improvements: 9,
	})
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "BEST COST                       466.77", lines[0])
	assert.Equal(t, "ITERATIONS                         140", lines[3])
}

func TestWriteSolFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exec_1")
	path, err := WriteSolFile(dir, model.Snapshot{Instance: "CMT1X", Round: 3, Kind: model.KindBest, Status: "LocalSearch"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "CMT1X-000003best.sol"), path)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	back, err := ParseSol(f)
	require.NoError(t, err)
	assert.Equal(t, "LocalSearch", back.Status)
}
