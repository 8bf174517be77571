//go:build highs

package oracle

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/nextmv-io/sdk/mip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

// The SDK loads its solver plugin on first use.
func requirePlugin(t *testing.T) {
	t.Helper()
	if os.Getenv("NEXTMV_LIBRARY_PATH") == "" && os.Getenv("NEXTMV_TOKEN") == "" {
		t.Skip("NEXTMV_LIBRARY_PATH or NEXTMV_TOKEN not set")
	}
}

func threeClients(t *testing.T) *model.Instance {
	t.Helper()
	nodes := []model.Node{
		{ID: 0},
		{ID: 1, Delivery: 2},
		{ID: 2, Pickup: 3},
		{ID: 3, Delivery: 2, Pickup: 2},
	}
	pts := [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	dist := make([][]float64, len(pts))
	for i := range pts {
		dist[i] = make([]float64, len(pts))
		for j := range pts {
			dist[i][j] = math.Hypot(pts[i][0]-pts[j][0], pts[i][1]-pts[j][1])
		}
	}
	in, err := model.NewInstance("three", nodes, dist, 5)
	require.NoError(t, err)
	return in
}

func TestHighsFormulation(t *testing.T) {
	requirePlugin(t)
	in := threeClients(t)
	m, vars := NewHighs(in, quiet()).formulation(allLinks(in))

	require.Len(t, vars, 12)
	assert.Len(t, m.Vars(), 3*12)
	assert.False(t, m.Objective().IsMaximize())
	assert.Len(t, m.Objective().Terms(), 3*12)

	// 4 per client and 4 at the depot, then per link: the load bound,
	// capacity bounds at client ends (9 each way) and the demand floors
	// into clients 1 and 3 and out of clients 2 and 3
	assert.Len(t, m.Constraints(), 16+12+9+9+6+6)
	degree := 0
	for _, c := range m.Constraints() {
		if c.Sense() == mip.Equal && c.RightHandSide() == 1 {
			degree++
		}
	}
	assert.Equal(t, 2*3, degree)
}

func TestHighsMatchesSearch(t *testing.T) {
	requirePlugin(t)
	in := threeClients(t)
	links := allLinks(in)
	exact, err := NewSearch(in, quiet()).Solve(context.Background(), links, 5*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, exact)

	sols, err := NewHighs(in, quiet()).Solve(context.Background(), links, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, sols, 1)
	require.NoError(t, sols[0].Validate(in))
	assert.Equal(t, StatusOptimal, sols[0].Status)
	assert.InDelta(t, exact[0].Cost(), sols[0].Cost(), 1e-4*exact[0].Cost()+opt.CostTolerance)
}
