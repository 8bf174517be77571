package opt

import (
	"math"
	"math/rand"
	"time"

	"vrpspd/internal/model"
)

// DefaultNearestNeighborProb is the chance of extending a route with the
// nearest untried client instead of a random one.
const DefaultNearestNeighborProb = 0.99

// Construct builds a feasible solution with a randomized nearest neighbor
// heuristic: routes are grown one at a time from a shuffled client list and
// closed when no remaining client fits.
func Construct(in *model.Instance, rng *rand.Rand, nearestProb float64) Solution {
	start := time.Now()
	free := in.Clients()
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	var routes []Route
	for len(free) > 0 {
		var nodes []int
		nodes, free = growRoute(in, rng, free, nearestProb)
		routes = append(routes, NewRoute(in, nodes))
	}
	return Solution{
		Routes:       routes,
		Status:       StatusConstruct,
		CreationTime: time.Since(start),
	}
}

// growRoute tries every free client once and returns the accepted sequence
// and the clients still free.
func growRoute(in *model.Instance, rng *rand.Rand, free []int, nearestProb float64) ([]int, []int) {
	candidates := append([]int(nil), free...)
	a := appender{in: in}
	for len(candidates) > 0 {
		pick := -1
		if len(a.nodes) > 0 && rng.Float64() < nearestProb {
			end, best := a.last(), math.MaxFloat64
			for i, c := range candidates {
				if d := in.Distance(end, c); d < best {
					best, pick = d, i
				}
			}
		} else {
			pick = rng.Intn(len(candidates))
		}
		c := candidates[pick]
		if a.fits(c) {
			a.push(c)
		}
		candidates = append(candidates[:pick], candidates[pick+1:]...)
	}
	// the first tried client always fits an empty route, so progress is guaranteed
	taken := make(map[int]struct{}, len(a.nodes))
	for _, id := range a.nodes {
		taken[id] = struct{}{}
	}
	rest := free[:0]
	for _, id := range free {
		if _, ok := taken[id]; !ok {
			rest = append(rest, id)
		}
	}
	return a.nodes, rest
}
