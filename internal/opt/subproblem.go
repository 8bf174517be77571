package opt

import (
	"cmp"
	"slices"

	"vrpspd/internal/model"
)

// MaxIncumbents bounds the incumbent pool and the number of solutions used
// to build a subproblem.
const MaxIncumbents = 5

// BuildSubproblem returns the links the oracle may use: every link of the
// first MaxIncumbents incumbents, every link inside the clique, and links
// joining the clique members' neighbors in those incumbents (predecessors
// into the clique, the clique into successors, predecessors into
// successors). Self links are never included. The result is sorted by
// origin then destination.
func BuildSubproblem(in *model.Instance, clique []int, incumbents []Solution) []model.Link {
	set := make(map[model.Arc]struct{})
	add := func(from, to int) {
		if from != to {
			set[model.Arc{From: from, To: to}] = struct{}{}
		}
	}
	member := make(map[int]bool, len(clique))
	for _, c := range clique {
		member[c] = true
	}

	var preds, succs []int
	seenPred, seenSucc := map[int]bool{}, map[int]bool{}
	for _, s := range incumbents[:min(len(incumbents), MaxIncumbents)] {
		for _, r := range s.Routes {
			for _, a := range r.Arcs() {
				add(a.From, a.To)
			}
			nodes := r.Nodes()
			for i, id := range nodes {
				if !member[id] {
					continue
				}
				pred, succ := model.Depot, model.Depot
				if i > 0 {
					pred = nodes[i-1]
				}
				if i+1 < len(nodes) {
					succ = nodes[i+1]
				}
				if !seenPred[pred] {
					seenPred[pred] = true
					preds = append(preds, pred)
				}
				if !seenSucc[succ] {
					seenSucc[succ] = true
					succs = append(succs, succ)
				}
			}
		}
	}

	for _, a := range clique {
		for _, b := range clique {
			add(a, b)
		}
	}
	for _, p := range preds {
		for _, c := range clique {
			add(p, c)
		}
		for _, s := range succs {
			add(p, s)
		}
	}
	for _, c := range clique {
		for _, s := range succs {
			add(c, s)
		}
	}

	links := make([]model.Link, 0, len(set))
	for a := range set {
		links = append(links, in.Link(a.From, a.To))
	}
	slices.SortFunc(links, func(x, y model.Link) int {
		if c := cmp.Compare(x.From, y.From); c != 0 {
			return c
		}
		return cmp.Compare(x.To, y.To)
	})
	return links
}
