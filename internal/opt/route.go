package opt

import (
	"math"

	"vrpspd/internal/model"
)

// CostTolerance is the smallest cost change treated as an improvement.
const CostTolerance = 0.001

// Route is an immutable client sequence between two depot visits. Its
// feasibility and cost are computed once by NewRoute; moves build new routes
// instead of editing existing ones, so the node slice may be shared.
type Route struct {
	nodes    []int
	feasible bool
	cost     float64
	delivery int // delivery remaining when leaving the depot
	pickup   int // pickup accumulated when returning to the depot
}

// NewRoute copies nodes and evaluates the route against in.
func NewRoute(in *model.Instance, nodes []int) Route {
	own := make([]int, len(nodes))
	copy(own, nodes)
	r := Route{nodes: own}
	r.cost, r.feasible = evaluate(in, own)
	for _, id := range own {
		r.delivery += in.Nodes[id].Delivery
		r.pickup += in.Nodes[id].Pickup
	}
	return r
}

// evaluate walks depot -> nodes... -> depot and returns the load-weighted
// fuel cost. Infeasible sequences return +Inf and false.
func evaluate(in *model.Instance, nodes []int) (float64, bool) {
	if len(nodes) == 0 {
		return 0, true
	}
	delivery, pickup := 0, 0
	for _, id := range nodes {
		delivery += in.Nodes[id].Delivery
		pickup += in.Nodes[id].Pickup
	}
	if delivery > in.Capacity || pickup > in.Capacity {
		return math.Inf(1), false
	}
	pickup = 0
	cost := in.EdgeCost(model.Depot, nodes[0], delivery)
	for i, id := range nodes {
		delivery -= in.Nodes[id].Delivery
		pickup += in.Nodes[id].Pickup
		load := delivery + pickup
		if load > in.Capacity {
			return math.Inf(1), false
		}
		next := model.Depot
		if i+1 < len(nodes) {
			next = nodes[i+1]
		}
		cost += in.EdgeCost(id, next, load)
	}
	return cost, true
}

// Nodes returns the client sequence. Callers must not modify it.
func (r Route) Nodes() []int { return r.nodes }

// Len is the number of clients on the route.
func (r Route) Len() int { return len(r.nodes) }

// Empty reports whether the route visits no client.
func (r Route) Empty() bool { return len(r.nodes) == 0 }

// Feasible reports whether every load along the route fits the capacity.
func (r Route) Feasible() bool { return r.feasible }

// Cost is the fuel cost of the route, +Inf when infeasible.
func (r Route) Cost() float64 { return r.cost }

// Delivery is the total delivery loaded at the depot.
func (r Route) Delivery() int { return r.delivery }

// Pickup is the total pickup brought back to the depot.
func (r Route) Pickup() int { return r.pickup }

// IndexOf returns the position of client id on the route or -1.
func (r Route) IndexOf(id int) int {
	for i, n := range r.nodes {
		if n == id {
			return i
		}
	}
	return -1
}

// Arcs returns the traversed arcs including both depot legs.
func (r Route) Arcs() []model.Arc {
	if len(r.nodes) == 0 {
		return nil
	}
	out := make([]model.Arc, 0, len(r.nodes)+1)
	prev := model.Depot
	for _, id := range r.nodes {
		out = append(out, model.Arc{From: prev, To: id})
		prev = id
	}
	return append(out, model.Arc{From: prev, To: model.Depot})
}

// Courses returns the delivery remaining and pickup accumulated values on
// each traversed link, in link order.
func (r Route) Courses(in *model.Instance) (delivery, pickup []int) {
	if len(r.nodes) == 0 {
		return nil, nil
	}
	delivery = make([]int, 0, len(r.nodes)+1)
	pickup = make([]int, 0, len(r.nodes)+1)
	d, p := r.delivery, 0
	delivery = append(delivery, d)
	pickup = append(pickup, p)
	for _, id := range r.nodes {
		d -= in.Nodes[id].Delivery
		p += in.Nodes[id].Pickup
		delivery = append(delivery, d)
		pickup = append(pickup, p)
	}
	return delivery, pickup
}

// appender grows a route one client at a time with an O(1) capacity check.
// Appending c raises every load already on the course by c.Delivery and
// ends the course at the new pickup total.
type appender struct {
	in       *model.Instance
	nodes    []int
	maxLoad  int
	delivery int
	pickup   int
}

func (a *appender) fits(id int) bool {
	nd := a.in.Nodes[id]
	return a.maxLoad+nd.Delivery <= a.in.Capacity && a.pickup+nd.Pickup <= a.in.Capacity
}

func (a *appender) push(id int) {
	nd := a.in.Nodes[id]
	a.nodes = append(a.nodes, id)
	a.delivery += nd.Delivery
	a.pickup += nd.Pickup
	a.maxLoad += nd.Delivery
	if a.pickup > a.maxLoad {
		a.maxLoad = a.pickup
	}
}

func (a *appender) last() int {
	if len(a.nodes) == 0 {
		return model.Depot
	}
	return a.nodes[len(a.nodes)-1]
}
