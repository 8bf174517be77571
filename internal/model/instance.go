package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Fuel model constants. The per-edge rate grows linearly from EmptyRate
// (vehicle empty) to FullRate (vehicle at capacity).
const (
	UnitFuelCost = 1.0
	EmptyRate    = 1.0
	FullRate     = 2.0
)

// Depot is the id of the single depot node.
const Depot = 0

// ErrInvalidInstance marks instance data that cannot be searched.
var ErrInvalidInstance = errors.New("invalid instance")

// Node is a depot or client with its pickup and delivery demand.
type Node struct {
	ID       int `json:"id" yaml:"id"`
	Pickup   int `json:"pickup" yaml:"pickup"`
	Delivery int `json:"delivery" yaml:"delivery"`
}

// Arc identifies a directed link by its endpoints.
type Arc struct {
	From, To int
}

// Link is a directed arc with its precomputed distance.
type Link struct {
	From     int     `json:"from"`
	To       int     `json:"to"`
	Distance float64 `json:"distance"`
}

// Arc returns the endpoints of l.
func (l Link) Arc() Arc { return Arc{From: l.From, To: l.To} }

// Instance is the immutable distance model of one problem: nodes indexed by
// id (depot first), a complete directed distance matrix and the vehicle
// capacity. It is shared read-only by every search component.
type Instance struct {
	Name     string
	Nodes    []Node
	Capacity int

	TotalPickup   int
	TotalDelivery int
	// Alpha is the load sensitivity of the fuel rate per unit of load.
	Alpha float64

	n    int
	dist []float64
}

// NewInstance validates the node list and distance matrix and derives the
// aggregate demands and fuel coefficient.
func NewInstance(name string, nodes []Node, dist [][]float64, capacity int) (*Instance, error) {
	n := len(nodes)
	if n < 2 {
		return nil, fmt.Errorf("%w: need a depot and at least one client, got %d nodes", ErrInvalidInstance, n)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidInstance, capacity)
	}
	if len(dist) != n {
		return nil, fmt.Errorf("%w: distance matrix has %d rows for %d nodes", ErrInvalidInstance, len(dist), n)
	}
	in := &Instance{
		Name:     name,
		Nodes:    make([]Node, n),
		Capacity: capacity,
		Alpha:    (FullRate - EmptyRate) / float64(capacity),
		n:        n,
		dist:     make([]float64, n*n),
	}
	for i, nd := range nodes {
		if nd.ID != i {
			return nil, fmt.Errorf("%w: node at position %d has id %d", ErrInvalidInstance, i, nd.ID)
		}
		if nd.Pickup < 0 || nd.Delivery < 0 {
			return nil, fmt.Errorf("%w: node %d has negative demand", ErrInvalidInstance, i)
		}
		if i > 0 && (nd.Pickup > capacity || nd.Delivery > capacity) {
			return nil, fmt.Errorf("%w: node %d demand exceeds capacity %d", ErrInvalidInstance, i, capacity)
		}
		in.Nodes[i] = nd
		if i != Depot {
			in.TotalPickup += nd.Pickup
			in.TotalDelivery += nd.Delivery
		}
	}
	for i, row := range dist {
		if len(row) != n {
			return nil, fmt.Errorf("%w: distance row %d has %d columns for %d nodes", ErrInvalidInstance, i, len(row), n)
		}
		for j, d := range row {
			if i != j && (d < 0 || math.IsNaN(d) || math.IsInf(d, 0)) {
				return nil, fmt.Errorf("%w: distance %d->%d is %v", ErrInvalidInstance, i, j, d)
			}
			in.dist[i*n+j] = d
		}
	}
	return in, nil
}

// Size is the number of nodes including the depot.
func (in *Instance) Size() int { return in.n }

// Distance returns the distance of the link from -> to.
func (in *Instance) Distance(from, to int) float64 { return in.dist[from*in.n+to] }

// Link returns the link from -> to.
func (in *Instance) Link(from, to int) Link {
	return Link{From: from, To: to, Distance: in.dist[from*in.n+to]}
}

// Clients returns the client ids in ascending order.
func (in *Instance) Clients() []int {
	out := make([]int, 0, in.n-1)
	for i := 1; i < in.n; i++ {
		out = append(out, i)
	}
	return out
}

// EdgeCost is the fuel cost of traversing from -> to while carrying load.
func (in *Instance) EdgeCost(from, to, load int) float64 {
	return UnitFuelCost * in.dist[from*in.n+to] * (EmptyRate + in.Alpha*float64(load))
}

// CostDivisor is the scale applied to costs when reporting. Dethloff
// instances (CON*, SCA*) store distances multiplied by 10000.
func (in *Instance) CostDivisor() float64 {
	if strings.Contains(in.Name, "CON") || strings.Contains(in.Name, "SCA") {
		return 10000
	}
	return 1
}
