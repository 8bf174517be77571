package opt

import "sort"

// Pool keeps the cheapest distinct solutions seen in the latest round,
// cheapest first.
type Pool struct {
	limit int
	items []Solution
}

// NewPool returns an empty pool holding at most limit solutions.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = MaxIncumbents
	}
	return &Pool{limit: limit}
}

// Reset empties the pool and seeds it with s.
func (p *Pool) Reset(s Solution) {
	p.items = p.items[:0]
	p.items = append(p.items, s)
}

// Add inserts s in cost order unless an equivalent solution is present.
// The most expensive entry is dropped when the pool overflows. Add reports
// whether s was kept.
func (p *Pool) Add(s Solution) bool {
	if p.Contains(s) {
		return false
	}
	c := s.Cost()
	i := sort.Search(len(p.items), func(i int) bool { return p.items[i].Cost() > c })
	if i >= p.limit {
		return false
	}
	p.items = append(p.items, Solution{})
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = s
	if len(p.items) > p.limit {
		p.items = p.items[:p.limit]
	}
	return true
}

// Contains reports whether an equivalent solution is in the pool.
func (p *Pool) Contains(s Solution) bool {
	for _, it := range p.items {
		if it.Equivalent(s) {
			return true
		}
	}
	return false
}

// Len is the number of pooled solutions.
func (p *Pool) Len() int { return len(p.items) }

// Solutions returns the pooled solutions, cheapest first.
func (p *Pool) Solutions() []Solution { return append([]Solution(nil), p.items...) }
