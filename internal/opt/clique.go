package opt

import (
	"math/rand"
	"slices"

	"vrpspd/internal/model"
)

// MinCliqueSize is the smallest clique the search samples, depot included.
const MinCliqueSize = 4

// CliqueSampler draws clusters of nearby clients. Base clients come from a
// rotating pool so that every client seeds a clique before any repeats.
type CliqueSampler struct {
	in        *model.Instance
	rng       *rand.Rand
	remaining []int
	weights   []float64
}

// NewCliqueSampler returns a sampler with a full pool.
func NewCliqueSampler(in *model.Instance, rng *rand.Rand) *CliqueSampler {
	return &CliqueSampler{in: in, rng: rng, remaining: in.Clients()}
}

// Remaining is the number of clients not yet used in the current rotation.
func (cs *CliqueSampler) Remaining() int { return len(cs.remaining) }

// Refill restores every client to the pool.
func (cs *CliqueSampler) Refill() { cs.remaining = cs.in.Clients() }

// Sample returns a clique of size nodes: the depot, a base client drawn
// uniformly from the pool, then clients drawn by roulette wheel weighted by
// proximity to the base. Chosen clients leave the pool. Size is clamped to
// [min(MinCliqueSize, clients+1), clients+1].
func (cs *CliqueSampler) Sample(size int) []int {
	clients := cs.in.Size() - 1
	size = max(size, MinCliqueSize)
	size = min(size, clients+1)
	if len(cs.remaining) == 0 {
		cs.Refill()
	}
	clique := make([]int, 0, size)
	clique = append(clique, model.Depot)

	base := cs.remaining[cs.rng.Intn(len(cs.remaining))]
	cs.take(base)
	clique = append(clique, base)

	left := make([]int, 0, clients-1)
	for _, c := range cs.in.Clients() {
		if c != base {
			left = append(left, c)
		}
	}
	for len(clique) < size && len(left) > 0 {
		cs.weights = cs.weights[:0]
		for _, c := range left {
			cs.weights = append(cs.weights, 1/(cs.in.Distance(base, c)+0.01))
		}
		i := roulette(cs.weights, cs.rng)
		c := left[i]
		left = append(left[:i], left[i+1:]...)
		cs.take(c)
		clique = append(clique, c)
	}
	return clique
}

func (cs *CliqueSampler) take(id int) {
	if i := slices.Index(cs.remaining, id); i >= 0 {
		cs.remaining = append(cs.remaining[:i], cs.remaining[i+1:]...)
	}
}

// roulette picks an index with probability proportional to its weight.
func roulette(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
