package opt

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpspd/internal/model"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

type recorder struct {
	events []Event
}

func (r *recorder) Observe(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds(kind string) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestVDNSKeepsBestWhenOracleFindsNothing(t *testing.T) {
	in := randomInstance(t, 12, 21)
	empty := OracleFunc(func(context.Context, []model.Link, time.Duration) ([]Solution, error) {
		return nil, nil
	})
	rec := &recorder{}
	v := NewVDNS(in, empty, Options{
		TimeBudget:       time.Minute,
		SubproblemBudget: time.Second,
		Seed:             21,
		MaxRounds:        3,
		Observer:         rec,
		Logger:           quietLogger(),
	})
	res, err := v.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, res.Best.Validate(in))
	assert.Equal(t, 4, res.Rounds)
	assert.Zero(t, res.Improvements)
	// no gap available counts as a struggling oracle
	assert.Equal(t, MinCliqueSize, res.CliqueSize)
	assert.Equal(t, 3, res.Metrics.Contractions)
	assert.Equal(t, 3, res.Metrics.OracleCalls)

	rounds := rec.kinds(EventRound)
	require.Len(t, rounds, 3)
	for _, ev := range rounds {
		assert.Equal(t, OutcomeEmpty, ev.Outcome)
		assert.Equal(t, 1.0, ev.Gap)
		assert.InDelta(t, res.Best.Cost(), ev.BestCost, 1e-9)
	}
	assert.Len(t, rec.kinds(model.KindConstruct), 1)
	assert.Len(t, rec.kinds(model.KindBest), 1)
	assert.Empty(t, rec.kinds(model.KindOracle))
}

func TestVDNSBestIsMonotone(t *testing.T) {
	in := randomInstance(t, 20, 5)
	rng := rand.New(rand.NewSource(99))
	// returns fresh constructions; some beat the incumbent, most do not
	oracle := OracleFunc(func(_ context.Context, _ []model.Link, _ time.Duration) ([]Solution, error) {
		out := make([]Solution, 0, 3)
		for i := 0; i < 3; i++ {
			s := Construct(in, rng, 0.9)
			s.Status = "Optimal"
			out = append(out, s)
		}
		return out, nil
	})
	rec := &recorder{}
	v := NewVDNS(in, oracle, Options{
		TimeBudget:       time.Minute,
		SubproblemBudget: time.Second,
		Seed:             5,
		MaxRounds:        15,
		Observer:         rec,
		Logger:           quietLogger(),
	})
	res, err := v.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Best.Validate(in))

	rounds := rec.kinds(EventRound)
	require.Len(t, rounds, 15)
	prev := rounds[0].BestCost
	for _, ev := range rounds[1:] {
		assert.LessOrEqual(t, ev.BestCost, prev)
		prev = ev.BestCost
	}
	assert.InDelta(t, res.Best.Cost(), prev, 1e-9)
	// gap 0 on every round grows the clique
	assert.Equal(t, 15, res.Metrics.Expansions)
	assert.Equal(t, min(MinCliqueSize+15, 20), res.CliqueSize)
}

func TestVDNSCliqueGrowsToWholeProblem(t *testing.T) {
	in := randomInstance(t, 6, 2)
	rng := rand.New(rand.NewSource(4))
	var last []model.Link
	oracle := OracleFunc(func(_ context.Context, links []model.Link, _ time.Duration) ([]Solution, error) {
		last = links
		s := Construct(in, rng, 0.9)
		s.Status = "Optimal"
		return []Solution{s}, nil
	})
	v := NewVDNS(in, oracle, Options{
		TimeBudget:       time.Minute,
		SubproblemBudget: time.Second,
		Seed:             2,
		MaxRounds:        10,
		Logger:           quietLogger(),
	})
	res, err := v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in.Size(), res.CliqueSize)

	// the deepest neighborhood frees every client
	touched := map[int]bool{}
	for _, l := range last {
		touched[l.From], touched[l.To] = true, true
	}
	for _, c := range in.Clients() {
		assert.True(t, touched[c], "client %d", c)
	}
}

func TestVDNSDiscardsInvalidOracleSolutions(t *testing.T) {
	in := randomInstance(t, 10, 8)
	broken := OracleFunc(func(context.Context, []model.Link, time.Duration) ([]Solution, error) {
		// misses every client but the first
		return []Solution{NewSolution(in, [][]int{{1}})}, nil
	})
	v := NewVDNS(in, broken, Options{Seed: 8, MaxRounds: 2, Logger: quietLogger()})
	res, err := v.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Best.Validate(in))
	assert.Equal(t, 2, res.Metrics.OracleFailures)
	assert.Zero(t, res.Improvements)
}

func TestVDNSSurvivesOracleErrors(t *testing.T) {
	in := randomInstance(t, 10, 9)
	failing := OracleFunc(func(context.Context, []model.Link, time.Duration) ([]Solution, error) {
		return nil, errors.New("solver unavailable")
	})
	v := NewVDNS(in, failing, Options{Seed: 9, MaxRounds: 2, Logger: quietLogger()})
	res, err := v.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Best.Validate(in))
	assert.Equal(t, 2, res.Metrics.OracleFailures)
}

func TestVDNSPassesBoundedLimit(t *testing.T) {
	in := randomInstance(t, 10, 10)
	var limits []time.Duration
	oracle := OracleFunc(func(ctx context.Context, links []model.Link, limit time.Duration) ([]Solution, error) {
		limits = append(limits, limit)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.NotEmpty(t, links)
		return nil, nil
	})
	v := NewVDNS(in, oracle, Options{
		TimeBudget:       time.Hour,
		SubproblemBudget: 50 * time.Millisecond,
		Seed:             10,
		MaxRounds:        2,
		Logger:           quietLogger(),
	})
	_, err := v.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, limits, 2)
	for _, l := range limits {
		assert.Equal(t, 50*time.Millisecond, l)
	}
}

func TestVDNSStopsOnCancelledContext(t *testing.T) {
	in := randomInstance(t, 10, 11)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	oracle := OracleFunc(func(context.Context, []model.Link, time.Duration) ([]Solution, error) {
		calls++
		cancel()
		return nil, nil
	})
	v := NewVDNS(in, oracle, Options{Seed: 11, Logger: quietLogger()})
	res, err := v.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, res.Best.Validate(in))
}
