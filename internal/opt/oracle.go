package opt

import (
	"context"
	"math"
	"time"

	"vrpspd/internal/model"
)

// GapThreshold is the relative gap under which the oracle is considered to
// have solved a subproblem comfortably.
const GapThreshold = 0.01

// Oracle solves the routing problem restricted to a set of links within a
// time limit. It returns its solutions best first; an empty result with a
// nil error means nothing was found in time.
type Oracle interface {
	Solve(ctx context.Context, links []model.Link, limit time.Duration) ([]Solution, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, links []model.Link, limit time.Duration) ([]Solution, error)

// Solve calls f.
func (f OracleFunc) Solve(ctx context.Context, links []model.Link, limit time.Duration) ([]Solution, error) {
	return f(ctx, links, limit)
}

// RelativeGap is |objective - bound| / (1e-10 + |objective|).
func RelativeGap(objective, bound float64) float64 {
	return math.Abs(objective-bound) / (1e-10 + math.Abs(objective))
}
