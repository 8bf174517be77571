package opt

import (
	"math/rand"
	"time"

	"vrpspd/internal/model"
)

// LocalSearch improves a solution with 2-opt, crossover, relocation and
// interchange moves until none of them finds an improvement larger than
// CostTolerance. It is not safe for concurrent use.
type LocalSearch struct {
	in  *model.Instance
	rng *rand.Rand

	// scratch sequences for candidate moves; only accepted moves allocate
	bufA, bufB []int
}

// NewLocalSearch returns an engine bound to in.
func NewLocalSearch(in *model.Instance, rng *rand.Rand) *LocalSearch {
	return &LocalSearch{
		in:   in,
		rng:  rng,
		bufA: make([]int, 0, in.Size()),
		bufB: make([]int, 0, in.Size()),
	}
}

// Run returns a local optimum reachable from s. s is not modified.
func (ls *LocalSearch) Run(s Solution) Solution {
	start := time.Now()
	cur := s.Clone()
	cur.Prune()
	for {
		improved := ls.twoOpt(&cur)
		improved = ls.crossover(&cur) || improved
		improved = ls.relocate(&cur) || improved
		improved = ls.interchange(&cur) || improved
		if !improved {
			break
		}
	}
	cur.Status = StatusLocalSearch
	cur.LowerBound = 0
	cur.Gap = 0
	cur.CreationTime = 0
	cur.SolvingTime = time.Since(start)
	return cur
}

func (ls *LocalSearch) eval(nodes []int) (float64, bool) { return evaluate(ls.in, nodes) }

// reverseInto writes nodes with the segment [i..j] reversed into dst.
func reverseInto(dst, nodes []int, i, j int) []int {
	dst = append(dst[:0], nodes[:i]...)
	for k := j; k >= i; k-- {
		dst = append(dst, nodes[k])
	}
	return append(dst, nodes[j+1:]...)
}

// twoOpt applies first-improvement segment reversals on every route. After
// an accepted reversal at i the scan resumes from i-1.
func (ls *LocalSearch) twoOpt(s *Solution) bool {
	improved := false
	for k := range s.Routes {
		r := s.Routes[k]
		n := r.Len()
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				ls.bufA = reverseInto(ls.bufA, r.Nodes(), i, j)
				c, ok := ls.eval(ls.bufA)
				if !ok || c >= r.Cost()-CostTolerance {
					continue
				}
				r = NewRoute(ls.in, ls.bufA)
				s.Routes[k] = r
				improved = true
				i = max(0, i-1) - 1 // the outer post statement adds one back
				break
			}
		}
	}
	return improved
}

// crossover exchanges route tails between every pair of routes and applies
// the best improving exchange per pair. Touched routes move to the front of
// the scan order, which then restarts.
func (ls *LocalSearch) crossover(s *Solution) bool {
	improved := false
	order := ls.rng.Perm(len(s.Routes))
	for {
		var ok bool
		if order, ok = ls.crossoverPass(s, order); !ok {
			return improved
		}
		improved = true
	}
}

func (ls *LocalSearch) crossoverPass(s *Solution, order []int) ([]int, bool) {
	for a := 0; a < len(order); a++ {
		for b := a + 1; b < len(order); b++ {
			ra, rb := s.Routes[order[a]], s.Routes[order[b]]
			base := ra.Cost() + rb.Cost()
			bestDelta, bestA, bestB := 0.0, -1, -1
			for cutA := 0; cutA <= ra.Len(); cutA++ {
				for cutB := 0; cutB <= rb.Len(); cutB++ {
					ls.bufA = append(append(ls.bufA[:0], ra.Nodes()[:cutA]...), rb.Nodes()[cutB:]...)
					ca, ok := ls.eval(ls.bufA)
					if !ok {
						continue
					}
					ls.bufB = append(append(ls.bufB[:0], rb.Nodes()[:cutB]...), ra.Nodes()[cutA:]...)
					cb, ok := ls.eval(ls.bufB)
					if !ok {
						continue
					}
					if d := ca + cb - base; d < bestDelta-CostTolerance {
						bestDelta, bestA, bestB = d, cutA, cutB
					}
				}
			}
			if bestA < 0 {
				continue
			}
			ls.bufA = append(append(ls.bufA[:0], ra.Nodes()[:bestA]...), rb.Nodes()[bestB:]...)
			ls.bufB = append(append(ls.bufB[:0], rb.Nodes()[:bestB]...), ra.Nodes()[bestA:]...)
			ia, ib := order[a], order[b]
			s.Routes[ia] = NewRoute(ls.in, ls.bufA)
			s.Routes[ib] = NewRoute(ls.in, ls.bufB)
			return frontOrder(s, order, ia, ib), true
		}
	}
	return order, false
}

// frontOrder moves route slots ia and ib to the front of order, dropping
// either slot if its route became empty and renumbering the rest.
func frontOrder(s *Solution, order []int, ia, ib int) []int {
	next := make([]int, 0, len(order))
	for _, k := range []int{ia, ib} {
		if !s.Routes[k].Empty() {
			next = append(next, k)
		}
	}
	for _, k := range order {
		if k != ia && k != ib {
			next = append(next, k)
		}
	}
	removed := -1
	for _, k := range []int{ia, ib} {
		if s.Routes[k].Empty() {
			removed = k
		}
	}
	if removed < 0 {
		return next
	}
	s.Routes = append(s.Routes[:removed], s.Routes[removed+1:]...)
	for i, k := range next {
		if k > removed {
			next[i] = k - 1
		}
	}
	return next
}

// relocate moves each client, in random order, to its best position within
// its own route and then to the best position in another route.
func (ls *LocalSearch) relocate(s *Solution) bool {
	improved := false
	for _, id := range ls.shuffledClients() {
		improved = ls.relocateWithin(s, id) || improved
		improved = ls.relocateAcross(s, id) || improved
	}
	return improved
}

func (ls *LocalSearch) relocateWithin(s *Solution, id int) bool {
	k, p := s.routeOf(id)
	r := s.Routes[k]
	best, bestPos := r.Cost(), -1
	for pos := 0; pos < r.Len(); pos++ {
		if pos == p {
			continue
		}
		ls.bufA = insertInto(ls.bufA, without(ls.bufB[:0], r.Nodes(), p), pos, id)
		if c, ok := ls.eval(ls.bufA); ok && c < best-CostTolerance {
			best, bestPos = c, pos
		}
	}
	if bestPos < 0 {
		return false
	}
	ls.bufA = insertInto(ls.bufA, without(ls.bufB[:0], r.Nodes(), p), bestPos, id)
	s.Routes[k] = NewRoute(ls.in, ls.bufA)
	return true
}

func (ls *LocalSearch) relocateAcross(s *Solution, id int) bool {
	k, p := s.routeOf(id)
	r := s.Routes[k]
	rest := without(nil, r.Nodes(), p)
	restCost, ok := ls.eval(rest)
	if !ok {
		return false
	}
	nd := ls.in.Nodes[id]
	bestDelta, bestRoute, bestPos := 0.0, -1, -1
	for t, dst := range s.Routes {
		if t == k {
			continue
		}
		if dst.Delivery()+nd.Delivery > ls.in.Capacity || dst.Pickup()+nd.Pickup > ls.in.Capacity {
			continue
		}
		for pos := 0; pos <= dst.Len(); pos++ {
			ls.bufA = insertInto(ls.bufA, dst.Nodes(), pos, id)
			c, ok := ls.eval(ls.bufA)
			if !ok {
				continue
			}
			if d := restCost + c - r.Cost() - dst.Cost(); d < bestDelta-CostTolerance {
				bestDelta, bestRoute, bestPos = d, t, pos
			}
		}
	}
	if len(rest) > 0 {
		single, _ := ls.eval([]int{id})
		if d := restCost + single - r.Cost(); d < bestDelta-CostTolerance {
			bestDelta, bestRoute, bestPos = d, len(s.Routes), 0
		}
	}
	if bestRoute < 0 {
		return false
	}
	if bestRoute == len(s.Routes) {
		s.Routes = append(s.Routes, NewRoute(ls.in, []int{id}))
	} else {
		ls.bufA = insertInto(ls.bufA, s.Routes[bestRoute].Nodes(), bestPos, id)
		s.Routes[bestRoute] = NewRoute(ls.in, ls.bufA)
	}
	if len(rest) == 0 {
		s.Routes = append(s.Routes[:k], s.Routes[k+1:]...)
	} else {
		s.Routes[k] = NewRoute(ls.in, rest)
	}
	return true
}

// interchange swaps each client, in random order, with the best partner in
// its own route and then with the best partner in another route.
func (ls *LocalSearch) interchange(s *Solution) bool {
	improved := false
	for _, id := range ls.shuffledClients() {
		improved = ls.swapWithin(s, id) || improved
		improved = ls.swapAcross(s, id) || improved
	}
	return improved
}

func (ls *LocalSearch) swapWithin(s *Solution, id int) bool {
	k, p := s.routeOf(id)
	r := s.Routes[k]
	best, bestPos := r.Cost(), -1
	for q := 0; q < r.Len(); q++ {
		if q == p {
			continue
		}
		ls.bufA = append(ls.bufA[:0], r.Nodes()...)
		ls.bufA[p], ls.bufA[q] = ls.bufA[q], ls.bufA[p]
		if c, ok := ls.eval(ls.bufA); ok && c < best-CostTolerance {
			best, bestPos = c, q
		}
	}
	if bestPos < 0 {
		return false
	}
	ls.bufA = append(ls.bufA[:0], r.Nodes()...)
	ls.bufA[p], ls.bufA[bestPos] = ls.bufA[bestPos], ls.bufA[p]
	s.Routes[k] = NewRoute(ls.in, ls.bufA)
	return true
}

func (ls *LocalSearch) swapAcross(s *Solution, id int) bool {
	k, p := s.routeOf(id)
	r := s.Routes[k]
	bestDelta, bestRoute, bestPos := 0.0, -1, -1
	for t, dst := range s.Routes {
		if t == k {
			continue
		}
		for q, other := range dst.Nodes() {
			ls.bufA = append(ls.bufA[:0], r.Nodes()...)
			ls.bufA[p] = other
			ca, ok := ls.eval(ls.bufA)
			if !ok {
				continue
			}
			ls.bufB = append(ls.bufB[:0], dst.Nodes()...)
			ls.bufB[q] = id
			cb, ok := ls.eval(ls.bufB)
			if !ok {
				continue
			}
			if d := ca + cb - r.Cost() - dst.Cost(); d < bestDelta-CostTolerance {
				bestDelta, bestRoute, bestPos = d, t, q
			}
		}
	}
	if bestRoute < 0 {
		return false
	}
	dst := s.Routes[bestRoute]
	other := dst.Nodes()[bestPos]
	ls.bufA = append(ls.bufA[:0], r.Nodes()...)
	ls.bufA[p] = other
	ls.bufB = append(ls.bufB[:0], dst.Nodes()...)
	ls.bufB[bestPos] = id
	s.Routes[k] = NewRoute(ls.in, ls.bufA)
	s.Routes[bestRoute] = NewRoute(ls.in, ls.bufB)
	return true
}

func (ls *LocalSearch) shuffledClients() []int {
	ids := ls.in.Clients()
	ls.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// without writes nodes minus position p into dst.
func without(dst, nodes []int, p int) []int {
	dst = append(dst[:0], nodes[:p]...)
	return append(dst, nodes[p+1:]...)
}

// insertInto writes nodes with id inserted at pos into dst. dst must not
// alias nodes.
func insertInto(dst, nodes []int, pos, id int) []int {
	dst = append(dst[:0], nodes[:pos]...)
	dst = append(dst, id)
	return append(dst, nodes[pos:]...)
}
