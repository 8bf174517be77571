package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

func TestConstructProducesFeasiblePartition(t *testing.T) {
	in := squareInstance(t)
	for seed := int64(1); seed <= 20; seed++ {
		s := Construct(in, rand.New(rand.NewSource(seed)), DefaultNearestNeighborProb)
		require.NoError(t, s.Validate(in), "seed %d", seed)
		for _, r := range s.Routes {
			delivery, pickup := r.Courses(in)
			for i := range delivery {
				assert.LessOrEqual(t, delivery[i]+pickup[i], in.Capacity)
			}
		}
		assert.Equal(t, StatusConstruct, s.Status)
	}
}

func TestTwoOptUncrossesRoute(t *testing.T) {
	in := squareInstance(t)
	crossed := NewRoute(in, []int{2, 1, 3})
	require.True(t, crossed.Feasible())

	s := Solution{Routes: []Route{crossed}}
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	require.True(t, ls.twoOpt(&s))
	assert.Equal(t, []int{1, 2, 3}, s.Routes[0].Nodes())
	assert.Less(t, s.Routes[0].Cost(), crossed.Cost())
}

func TestCrossoverMergesSingletons(t *testing.T) {
	nodes := []model.Node{{ID: 0}, {ID: 1, Delivery: 2}, {ID: 2, Delivery: 2}}
	in, err := model.NewInstance("pair", nodes, euclidean([]point{{0, 0}, {10, 0}, {10, 1}}), 10)
	require.NoError(t, err)

	s := NewSolution(in, [][]int{{1}, {2}})
	before := s.Cost()
	ls := NewLocalSearch(in, rand.New(rand.NewSource(2)))
	require.True(t, ls.crossover(&s))

	require.Len(t, s.Routes, 1)
	assert.ElementsMatch(t, []int{1, 2}, s.Routes[0].Nodes())
	assert.Less(t, s.Cost(), before)
	assert.NoError(t, s.Validate(in))
}

func TestRelocateOpensRouteOnlyWhenOriginKeepsClients(t *testing.T) {
	in := squareInstance(t)
	s := NewSolution(in, [][]int{{1}})
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	// a lone client has nowhere to go
	assert.False(t, ls.relocateAcross(&s, 1))
	assert.Len(t, s.Routes, 1)
}

func unitDemands(n int) []model.Node {
	nodes := make([]model.Node, n+1)
	for i := range nodes {
		nodes[i] = model.Node{ID: i, Delivery: 1}
	}
	nodes[0] = model.Node{ID: 0}
	return nodes
}

func TestRelocateMovesClientIntoCheaperRoute(t *testing.T) {
	// 3 sits between 1 and 2 but is served alone
	pts := []point{{0, 0}, {0, 10}, {10, 10}, {5, 11}}
	in, err := model.NewInstance("detour", unitDemands(3), euclidean(pts), 10)
	require.NoError(t, err)

	s := NewSolution(in, [][]int{{1, 2}, {3}})
	before := s.Cost()
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	require.True(t, ls.relocateAcross(&s, 3))

	// the emptied route is gone
	require.Len(t, s.Routes, 1)
	assert.Equal(t, []int{1, 3, 2}, s.Routes[0].Nodes())
	assert.Less(t, s.Cost(), before)
	assert.NoError(t, s.Validate(in))
}

func TestRelocateOpensRouteWhenStrictlyCheaper(t *testing.T) {
	// 1 picks up a near full load next to the depot; carrying it out to 2
	// and back costs more than a second vehicle
	nodes := []model.Node{{ID: 0}, {ID: 1, Pickup: 9}, {ID: 2, Delivery: 1}}
	in, err := model.NewInstance("haul", nodes, euclidean([]point{{0, 0}, {1, 0}, {100, 0}}), 10)
	require.NoError(t, err)

	s := NewSolution(in, [][]int{{1, 2}})
	require.True(t, s.Routes[0].Feasible())
	before := s.Cost()
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	require.True(t, ls.relocateAcross(&s, 2))

	assert.Equal(t, [][]int{{1}, {2}}, s.Sequences())
	assert.Less(t, s.Cost(), before-CostTolerance)
	assert.NoError(t, s.Validate(in))
}

func TestSwapWithinRoute(t *testing.T) {
	in := squareInstance(t)
	s := NewSolution(in, [][]int{{2, 1, 3}})
	before := s.Cost()
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	require.True(t, ls.swapWithin(&s, 2))
	assert.Equal(t, []int{1, 2, 3}, s.Routes[0].Nodes())
	assert.Less(t, s.Cost(), before)

	// already the best order
	assert.False(t, ls.swapWithin(&s, 2))
}

func TestSwapAcrossRoutes(t *testing.T) {
	// two spokes, each route visiting one client of each spoke
	pts := []point{{0, 0}, {0, 10}, {0, 11}, {10, 0}, {11, 0}}
	in, err := model.NewInstance("spokes", unitDemands(4), euclidean(pts), 10)
	require.NoError(t, err)

	s := NewSolution(in, [][]int{{1, 4}, {3, 2}})
	before := s.Cost()
	ls := NewLocalSearch(in, rand.New(rand.NewSource(1)))
	require.True(t, ls.swapAcross(&s, 4))

	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, s.Sequences())
	assert.Less(t, s.Cost(), before)
	assert.NoError(t, s.Validate(in))
	assert.False(t, ls.swapAcross(&s, 4))
}

func TestLocalSearchKeepsPartitionAndIsIdempotent(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4} {
		in := randomInstance(t, 30, seed)
		rng := rand.New(rand.NewSource(seed))
		start := Construct(in, rng, DefaultNearestNeighborProb)
		require.NoError(t, start.Validate(in))

		ls := NewLocalSearch(in, rng)
		once := ls.Run(start)
		require.NoError(t, once.Validate(in))
		assert.LessOrEqual(t, once.Cost(), start.Cost()+CostTolerance)
		assert.Equal(t, StatusLocalSearch, once.Status)

		twice := ls.Run(once)
		require.NoError(t, twice.Validate(in))
		assert.InDelta(t, once.Cost(), twice.Cost(), CostTolerance)
	}
}

func TestLocalSearchDoesNotModifyInput(t *testing.T) {
	in := randomInstance(t, 15, 9)
	rng := rand.New(rand.NewSource(9))
	start := Construct(in, rng, 0.5)
	routes := start.Sequences()
	NewLocalSearch(in, rng).Run(start)
	assert.Equal(t, routes, start.Sequences())
}
