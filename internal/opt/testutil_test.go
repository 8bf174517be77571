package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

type point struct{ x, y float64 }

func euclidean(pts []point) [][]float64 {
	d := make([][]float64, len(pts))
	for i := range pts {
		d[i] = make([]float64, len(pts))
		for j := range pts {
			d[i][j] = math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y)
		}
	}
	return d
}

// squareInstance places the depot and three clients on the corners of a
// 10x10 square: 0 (0,0), 1 (0,10), 2 (10,10), 3 (10,0).
func squareInstance(t *testing.T) *model.Instance {
	t.Helper()
	nodes := []model.Node{
		{ID: 0},
		{ID: 1, Delivery: 5},
		{ID: 2, Delivery: 5},
		{ID: 3, Pickup: 3},
	}
	pts := []point{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	in, err := model.NewInstance("square", nodes, euclidean(pts), 10)
	require.NoError(t, err)
	return in
}

// randomInstance builds a seeded instance with n clients in a 100x100 box.
func randomInstance(t *testing.T, n int, seed int64) *model.Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	nodes := make([]model.Node, n+1)
	pts := make([]point, n+1)
	pts[0] = point{50, 50}
	for i := 1; i <= n; i++ {
		nodes[i] = model.Node{ID: i, Pickup: rng.Intn(10), Delivery: rng.Intn(10)}
		pts[i] = point{rng.Float64() * 100, rng.Float64() * 100}
	}
	in, err := model.NewInstance("random", nodes, euclidean(pts), 30)
	require.NoError(t, err)
	return in
}
