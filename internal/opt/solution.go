package opt

import (
	"errors"
	"fmt"
	"math"
	"time"

	"vrpspd/internal/model"
)

// Solution statuses set by the engine. Oracle backends report their own.
const (
	StatusConstruct   = "Construct"
	StatusLocalSearch = "LocalSearch"
	StatusNoSolution  = "NoSolution"
)

var (
	errMissingClient   = errors.New("client not visited")
	errDuplicateClient = errors.New("client visited twice")
	errInfeasibleRoute = errors.New("route exceeds capacity")
)

// Solution is a set of routes visiting every client exactly once, plus the
// provenance reported by whoever produced it.
type Solution struct {
	Routes []Route

	Status     string
	LowerBound float64
	Gap        float64
	// CreationTime is the time spent building the model that produced the
	// solution, SolvingTime the time spent searching it.
	CreationTime time.Duration
	SolvingTime  time.Duration
}

// NewSolution builds a solution from raw client sequences. Empty sequences
// are dropped.
func NewSolution(in *model.Instance, routes [][]int) Solution {
	s := Solution{Routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		if len(r) == 0 {
			continue
		}
		s.Routes = append(s.Routes, NewRoute(in, r))
	}
	return s
}

// Cost sums the route costs. An empty solution has cost +Inf so that it
// never replaces a real one.
func (s Solution) Cost() float64 {
	if len(s.Routes) == 0 {
		return math.Inf(1)
	}
	total := 0.0
	for _, r := range s.Routes {
		total += r.Cost()
	}
	return total
}

// Clone copies the route slice. Routes are immutable so they are shared.
func (s Solution) Clone() Solution {
	out := s
	out.Routes = append([]Route(nil), s.Routes...)
	return out
}

// Prune drops empty routes in place.
func (s *Solution) Prune() {
	kept := s.Routes[:0]
	for _, r := range s.Routes {
		if !r.Empty() {
			kept = append(kept, r)
		}
	}
	s.Routes = kept
}

// Sequences returns the client sequence of every route.
func (s Solution) Sequences() [][]int {
	out := make([][]int, 0, len(s.Routes))
	for _, r := range s.Routes {
		out = append(out, append([]int(nil), r.Nodes()...))
	}
	return out
}

// Arcs returns the set of directed arcs used by the solution.
func (s Solution) Arcs() map[model.Arc]struct{} {
	set := make(map[model.Arc]struct{})
	for _, r := range s.Routes {
		for _, a := range r.Arcs() {
			set[a] = struct{}{}
		}
	}
	return set
}

// Equivalent reports whether both solutions use the same directed links.
func (s Solution) Equivalent(o Solution) bool {
	a, b := s.Arcs(), o.Arcs()
	if len(a) != len(b) {
		return false
	}
	for arc := range a {
		if _, ok := b[arc]; !ok {
			return false
		}
	}
	return true
}

// Validate checks that the routes partition the clients of in and that
// every route is feasible.
func (s Solution) Validate(in *model.Instance) error {
	seen := make([]bool, in.Size())
	for k, r := range s.Routes {
		if !r.Feasible() {
			return fmt.Errorf("route %d: %w", k, errInfeasibleRoute)
		}
		for _, id := range r.Nodes() {
			if id <= model.Depot || id >= in.Size() {
				return fmt.Errorf("route %d: node %d is not a client", k, id)
			}
			if seen[id] {
				return fmt.Errorf("client %d: %w", id, errDuplicateClient)
			}
			seen[id] = true
		}
	}
	for id := 1; id < in.Size(); id++ {
		if !seen[id] {
			return fmt.Errorf("client %d: %w", id, errMissingClient)
		}
	}
	return nil
}

// routeOf returns the index of the route visiting client id and its position.
func (s Solution) routeOf(id int) (int, int) {
	for k, r := range s.Routes {
		if p := r.IndexOf(id); p >= 0 {
			return k, p
		}
	}
	return -1, -1
}
