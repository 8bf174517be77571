package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle() [][]float64 {
	return [][]float64{
		{0, 3, 4, 5},
		{3, 0, 5, 4},
		{4, 5, 0, 3},
		{5, 4, 3, 0},
	}
}

func TestNewInstanceDerivesAggregates(t *testing.T) {
	nodes := []Node{{ID: 0}, {ID: 1, Delivery: 5}, {ID: 2, Delivery: 5}, {ID: 3, Pickup: 3}}
	in, err := NewInstance("T3", nodes, triangle(), 10)
	require.NoError(t, err)

	assert.Equal(t, 4, in.Size())
	assert.Equal(t, 10, in.TotalDelivery)
	assert.Equal(t, 3, in.TotalPickup)
	assert.InDelta(t, 0.1, in.Alpha, 1e-12)
	assert.Equal(t, []int{1, 2, 3}, in.Clients())
	assert.Equal(t, Link{From: 2, To: 3, Distance: 3}, in.Link(2, 3))
	// empty vehicle pays the base rate, a full one twice that
	assert.InDelta(t, 4.0, in.EdgeCost(0, 2, 0), 1e-12)
	assert.InDelta(t, 8.0, in.EdgeCost(0, 2, 10), 1e-12)
	assert.Equal(t, 1.0, in.CostDivisor())
}

func TestNewInstanceRejectsBadInput(t *testing.T) {
	good := []Node{{ID: 0}, {ID: 1, Delivery: 1}, {ID: 2}, {ID: 3}}
	cases := []struct {
		name  string
		nodes []Node
		dist  [][]float64
		cap   int
	}{
		{"no clients", []Node{{ID: 0}}, [][]float64{{0}}, 10},
		{"zero capacity", good, triangle(), 0},
		{"short matrix", good, triangle()[:3], 10},
		{"ragged row", good, [][]float64{{0, 1, 1, 1}, {1, 0, 1}, {1, 1, 0, 1}, {1, 1, 1, 0}}, 10},
		{"ids out of order", []Node{{ID: 0}, {ID: 2}, {ID: 1}, {ID: 3}}, triangle(), 10},
		{"negative distance", good, [][]float64{{0, -1, 1, 1}, {1, 0, 1, 1}, {1, 1, 0, 1}, {1, 1, 1, 0}}, 10},
		{"demand above capacity", []Node{{ID: 0}, {ID: 1, Pickup: 11}, {ID: 2}, {ID: 3}}, triangle(), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInstance("bad", tc.nodes, tc.dist, tc.cap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInstance))
		})
	}
}

func TestCostDivisorForDethloffInstances(t *testing.T) {
	nodes := []Node{{ID: 0}, {ID: 1}}
	in, err := NewInstance("CON3-0", nodes, [][]float64{{0, 1}, {1, 0}}, 5)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, in.CostDivisor())
}
