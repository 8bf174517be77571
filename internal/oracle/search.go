// Package oracle provides the subproblem solvers used by the decomposition
// search: an exhaustive branch-and-bound written in Go and a MIP model solved
// by HiGHS.
package oracle

import (
	"context"
	"math"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

// Statuses reported on oracle solutions.
const (
	StatusOptimal   = "Optimal"
	StatusTimeLimit = "TimeLimit"
)

// checkEvery is the node interval between deadline checks.
const checkEvery = 1024

// Search is a depth-first branch-and-bound over the allowed links. Routes
// are grown from the depot one client at a time and pruned with LowerBound.
// When the tree is exhausted the best solution is optimal for the link set.
type Search struct {
	in           *model.Instance
	maxSolutions int
	log          log.FieldLogger
}

// NewSearch returns a branch-and-bound oracle for in.
func NewSearch(in *model.Instance, logger log.FieldLogger) *Search {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Search{in: in, maxSolutions: opt.MaxIncumbents, log: logger.WithField("oracle", NameSearch)}
}

// LowerBound is the cheapest way to enter every node once at the empty
// rate: the sum over clients of their cheapest allowed inbound link plus the
// cheapest link back to the depot. It is +Inf when some client or the depot
// cannot be entered.
func LowerBound(in *model.Instance, links []model.Link) float64 {
	minIn := minInbound(in, links)
	total := 0.0
	for _, d := range minIn {
		total += d
	}
	return total * model.UnitFuelCost * model.EmptyRate
}

func minInbound(in *model.Instance, links []model.Link) []float64 {
	minIn := make([]float64, in.Size())
	for i := range minIn {
		minIn[i] = math.Inf(1)
	}
	for _, l := range links {
		if l.From != l.To && l.Distance < minIn[l.To] {
			minIn[l.To] = l.Distance
		}
	}
	return minIn
}

// Solve implements opt.Oracle.
func (s *Search) Solve(ctx context.Context, links []model.Link, limit time.Duration) ([]opt.Solution, error) {
	began := time.Now()
	bb := newBranchAndBound(s.in, links)
	bb.ctx = ctx
	bb.deadline = began.Add(limit)
	created := time.Since(began)

	root := bb.bound()
	if math.IsInf(root, 1) {
		return nil, nil
	}
	bb.dfs()
	solved := time.Since(began) - created

	if len(bb.found) == 0 {
		s.log.WithFields(log.Fields{"links": len(links), "nodes": bb.nodes, "complete": !bb.stopped}).Debug("no solution")
		return nil, nil
	}
	status, bound := StatusOptimal, bb.best
	if bb.stopped {
		status, bound = StatusTimeLimit, root
	}
	out := make([]opt.Solution, 0, s.maxSolutions)
	for i := len(bb.found) - 1; i >= 0 && len(out) < s.maxSolutions; i-- {
		sol := bb.found[i]
		sol.Status = status
		sol.LowerBound = bound
		sol.Gap = 0
		if bb.stopped {
			sol.Gap = opt.RelativeGap(sol.Cost(), bound)
		}
		sol.CreationTime = created
		sol.SolvingTime = solved
		out = append(out, sol)
	}
	s.log.WithFields(log.Fields{
		"links":  len(links),
		"nodes":  bb.nodes,
		"cost":   out[0].Cost(),
		"status": status,
	}).Debug("search finished")
	return out, nil
}

type branchAndBound struct {
	in       *model.Instance
	ctx      context.Context
	deadline time.Time

	succ  [][]int // allowed successors, nearest first
	minIn []float64

	visited   []bool
	remaining int
	routes    [][]int
	closed    float64 // cost of closed routes
	open      []int
	openDist  float64
	maxLoad   int
	pickup    int
	lastFirst int

	best    float64
	found   []opt.Solution
	nodes   int
	stopped bool
}

func newBranchAndBound(in *model.Instance, links []model.Link) *branchAndBound {
	n := in.Size()
	bb := &branchAndBound{
		in:        in,
		succ:      make([][]int, n),
		minIn:     minInbound(in, links),
		visited:   make([]bool, n),
		remaining: n - 1,
		best:      math.Inf(1),
	}
	for _, l := range links {
		if l.From != l.To {
			bb.succ[l.From] = append(bb.succ[l.From], l.To)
		}
	}
	for u := range bb.succ {
		slices.SortFunc(bb.succ[u], func(a, b int) int {
			da, db := in.Distance(u, a), in.Distance(u, b)
			switch {
			case da < db:
				return -1
			case da > db:
				return 1
			}
			return a - b
		})
	}
	return bb
}

// bound is a lower bound on any completion of the current partial solution.
func (bb *branchAndBound) bound() float64 {
	total := bb.closed + bb.openDist*model.UnitFuelCost*model.EmptyRate
	for v := 1; v < len(bb.visited); v++ {
		if !bb.visited[v] {
			total += bb.minIn[v] * model.UnitFuelCost * model.EmptyRate
		}
	}
	return total + bb.minIn[model.Depot]*model.UnitFuelCost*model.EmptyRate
}

func (bb *branchAndBound) expired() bool {
	if bb.stopped {
		return true
	}
	bb.nodes++
	if bb.nodes%checkEvery == 0 && (bb.ctx.Err() != nil || time.Now().After(bb.deadline)) {
		bb.stopped = true
	}
	return bb.stopped
}

func (bb *branchAndBound) dfs() {
	if bb.expired() {
		return
	}
	if bb.remaining == 0 && len(bb.open) == 0 {
		if bb.closed < bb.best-opt.CostTolerance {
			bb.best = bb.closed
			bb.found = append(bb.found, opt.NewSolution(bb.in, bb.routes))
		}
		return
	}
	if bb.bound() >= bb.best-opt.CostTolerance {
		return
	}
	if len(bb.open) == 0 {
		// routes are generated in increasing order of their first client
		for _, v := range bb.succ[model.Depot] {
			if v != model.Depot && !bb.visited[v] && v > bb.lastFirst {
				bb.extend(v)
			}
		}
		return
	}
	u := bb.open[len(bb.open)-1]
	for _, v := range bb.succ[u] {
		switch {
		case v == model.Depot:
			bb.closeRoute()
		case !bb.visited[v] && bb.fits(v):
			bb.extend(v)
		}
		if bb.stopped {
			return
		}
	}
}

func (bb *branchAndBound) fits(v int) bool {
	nd := bb.in.Nodes[v]
	return bb.maxLoad+nd.Delivery <= bb.in.Capacity && bb.pickup+nd.Pickup <= bb.in.Capacity
}

func (bb *branchAndBound) extend(v int) {
	prev := model.Depot
	if len(bb.open) > 0 {
		prev = bb.open[len(bb.open)-1]
	}
	nd := bb.in.Nodes[v]
	saveLoad, savePickup, saveDist, saveFirst := bb.maxLoad, bb.pickup, bb.openDist, bb.lastFirst
	if len(bb.open) == 0 {
		bb.lastFirst = v
	}
	bb.open = append(bb.open, v)
	bb.visited[v] = true
	bb.remaining--
	bb.pickup += nd.Pickup
	bb.maxLoad = max(bb.maxLoad+nd.Delivery, bb.pickup)
	bb.openDist += bb.in.Distance(prev, v)

	bb.dfs()

	bb.open = bb.open[:len(bb.open)-1]
	bb.visited[v] = false
	bb.remaining++
	bb.maxLoad, bb.pickup, bb.openDist, bb.lastFirst = saveLoad, savePickup, saveDist, saveFirst
}

func (bb *branchAndBound) closeRoute() {
	r := opt.NewRoute(bb.in, bb.open)
	if !r.Feasible() {
		return
	}
	saveOpen, saveLoad, savePickup, saveDist := bb.open, bb.maxLoad, bb.pickup, bb.openDist
	bb.routes = append(bb.routes, r.Nodes())
	bb.closed += r.Cost()
	bb.open, bb.maxLoad, bb.pickup, bb.openDist = nil, 0, 0, 0

	bb.dfs()

	bb.routes = bb.routes[:len(bb.routes)-1]
	bb.closed -= r.Cost()
	bb.open, bb.maxLoad, bb.pickup, bb.openDist = saveOpen, saveLoad, savePickup, saveDist
}
