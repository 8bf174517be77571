package opt

import (
	"context"
	"errors"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"vrpspd/internal/model"
)

// EventRound is emitted once per completed decomposition round.
const EventRound = "round"

// Oracle outcomes reported with round events.
const (
	OutcomeSolved  = "solved"
	OutcomeEmpty   = "empty"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Event describes a solution or round reported by the search. Kind is one
// of the model snapshot kinds or EventRound.
type Event struct {
	Kind       string
	Round      int
	CliqueSize int
	Elapsed    time.Duration
	BestCost   float64
	Solution   Solution

	// set on round events only
	Outcome    string
	OracleTime time.Duration
	Gap        float64
}

// Observer receives search events. Observe is called on the search
// goroutine and must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to every non-nil observer in order.
type Observers []Observer

// Observe implements Observer.
func (obs Observers) Observe(ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ev)
		}
	}
}

// Options configures a VDNS run.
type Options struct {
	TimeBudget       time.Duration
	SubproblemBudget time.Duration
	// Seed of the random source; 0 seeds from the clock.
	Seed                int64
	NearestNeighborProb float64
	MinCliqueSize       int
	MaxIncumbents       int
	// MaxRounds stops the search after that many rounds when positive.
	MaxRounds int
	Observer  Observer
	Logger    log.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.TimeBudget <= 0 {
		o.TimeBudget = 60 * time.Second
	}
	if o.SubproblemBudget <= 0 {
		o.SubproblemBudget = 5 * time.Second
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.NearestNeighborProb <= 0 || o.NearestNeighborProb > 1 {
		o.NearestNeighborProb = DefaultNearestNeighborProb
	}
	if o.MinCliqueSize <= 0 {
		o.MinCliqueSize = MinCliqueSize
	}
	if o.MaxIncumbents <= 0 {
		o.MaxIncumbents = MaxIncumbents
	}
	if o.Observer == nil {
		o.Observer = Observers(nil)
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return o
}

// Result is the outcome of a VDNS run.
type Result struct {
	Best         Solution
	TimeToBest   time.Duration
	RoundToBest  int
	Improvements int
	Rounds       int
	CliqueSize   int
	Elapsed      time.Duration
	Metrics      Metrics
}

// Metrics counts oracle outcomes over a run.
type Metrics struct {
	OracleCalls    int
	OracleFailures int
	OracleTime     time.Duration
	Expansions     int // rounds that grew the clique
	Contractions   int
}

// VDNS is the variable depth neighborhood search: it repeatedly frees a
// clique of nearby clients, lets the oracle re-route them within the links
// used by recent good solutions, and polishes improvements with local
// search. A valid best solution exists from the end of construction on.
type VDNS struct {
	in     *model.Instance
	oracle Oracle
	opts   Options
	log    log.FieldLogger

	rng     *rand.Rand
	ls      *LocalSearch
	sampler *CliqueSampler
	pool    *Pool

	start  time.Time
	best   Solution
	clique int
	res    Result
}

// NewVDNS prepares a search over in using oracle for the subproblems.
func NewVDNS(in *model.Instance, oracle Oracle, opts Options) *VDNS {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))
	return &VDNS{
		in:      in,
		oracle:  oracle,
		opts:    opts,
		log:     opts.Logger.WithField("instance", in.Name),
		rng:     rng,
		ls:      NewLocalSearch(in, rng),
		sampler: NewCliqueSampler(in, rng),
		pool:    NewPool(opts.MaxIncumbents),
	}
}

// Run searches until the time budget, the round limit or ctx ends it and
// returns the best solution found. It only fails when ctx is cancelled
// before construction completes.
func (v *VDNS) Run(ctx context.Context) (Result, error) {
	v.start = time.Now()
	v.clique = v.opts.MinCliqueSize
	v.res = Result{}

	built := Construct(v.in, v.rng, v.opts.NearestNeighborProb)
	v.emit(model.KindConstruct, built, built.Cost())
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	v.best = v.ls.Run(built)
	v.best.CreationTime = built.CreationTime
	v.pool.Reset(v.best)
	v.res.Rounds = 1
	v.log.WithField("cost", v.best.Cost()).Info("initial solution")

	for v.more(ctx) {
		if !v.round(ctx) {
			break
		}
		v.res.Rounds++
	}

	v.emit(model.KindBest, v.best, v.best.Cost())
	v.res.Best = v.best
	v.res.CliqueSize = v.clique
	v.res.Elapsed = time.Since(v.start)
	v.log.WithFields(log.Fields{
		"cost":         v.best.Cost(),
		"rounds":       v.res.Rounds,
		"improvements": v.res.Improvements,
	}).Info("search finished")
	return v.res, nil
}

func (v *VDNS) more(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if v.opts.MaxRounds > 0 && v.res.Rounds > v.opts.MaxRounds {
		return false
	}
	return time.Since(v.start) <= v.opts.TimeBudget
}

// round runs one decomposition step. It reports false when no time is left
// to call the oracle.
func (v *VDNS) round(ctx context.Context) bool {
	if v.sampler.Remaining() < v.clique {
		v.sampler.Refill()
	}
	clique := v.sampler.Sample(v.clique)
	links := BuildSubproblem(v.in, clique, v.pool.Solutions())

	limit := min(v.opts.SubproblemBudget, v.opts.TimeBudget-time.Since(v.start))
	if limit <= 0 {
		return false
	}
	sols, outcome, took := v.solve(ctx, links, limit)
	logger := v.log.WithFields(log.Fields{
		"round":  v.res.Rounds,
		"clique": len(clique),
		"links":  len(links),
	})

	v.pool.Reset(v.best)
	gap := 1.0
	if len(sols) > 0 {
		first := sols[0]
		gap = first.Gap
		v.emit(model.KindOracle, first, v.best.Cost())
		if first.Cost() < v.best.Cost()-CostTolerance {
			v.adopt(first)
			logger.WithField("cost", first.Cost()).Info("oracle improved best")
			v.polish(v.best)
			v.pool.Add(v.best)
		}
		for _, s := range sols[1:] {
			if v.pool.Contains(s) || s.Equivalent(v.best) {
				continue
			}
			v.pool.Add(v.polish(s))
		}
	} else {
		logger.WithField("outcome", outcome).Warn("oracle returned no usable solution")
	}

	if gap <= GapThreshold {
		v.clique = min(v.clique+1, max(v.in.Size(), v.opts.MinCliqueSize))
		v.res.Metrics.Expansions++
	} else {
		v.clique = max(v.clique-1, v.opts.MinCliqueSize)
		v.res.Metrics.Contractions++
	}

	logger.WithFields(log.Fields{"gap": gap, "best": v.best.Cost(), "next_clique": v.clique}).Debug("round done")
	v.opts.Observer.Observe(Event{
		Kind:       EventRound,
		Round:      v.res.Rounds,
		CliqueSize: v.clique,
		Elapsed:    time.Since(v.start),
		BestCost:   v.best.Cost(),
		Outcome:    outcome,
		OracleTime: took,
		Gap:        gap,
	})
	return true
}

// solve calls the oracle under a derived deadline and keeps only solutions
// that pass validation.
func (v *VDNS) solve(ctx context.Context, links []model.Link, limit time.Duration) ([]Solution, string, time.Duration) {
	octx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	began := time.Now()
	sols, err := v.oracle.Solve(octx, links, limit)
	took := time.Since(began)
	v.res.Metrics.OracleCalls++
	v.res.Metrics.OracleTime += took
	if err != nil {
		v.res.Metrics.OracleFailures++
		if !errors.Is(err, context.DeadlineExceeded) {
			v.log.WithError(err).Warn("oracle failed")
		}
		return nil, OutcomeError, took
	}
	if len(sols) == 0 {
		return nil, OutcomeEmpty, took
	}
	valid := sols[:0:0]
	for _, s := range sols {
		s.Prune()
		if err := s.Validate(v.in); err != nil {
			v.log.WithError(err).Warn("discarding invalid oracle solution")
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		v.res.Metrics.OracleFailures++
		return nil, OutcomeInvalid, took
	}
	return valid, OutcomeSolved, took
}

// polish runs local search on s and adopts the result when it beats the
// running best. It returns the polished solution.
func (v *VDNS) polish(s Solution) Solution {
	out := v.ls.Run(s)
	if out.Cost() < v.best.Cost()-CostTolerance {
		v.adopt(out)
		v.emit(model.KindLocalSearch, out, out.Cost())
		v.log.WithField("cost", out.Cost()).Info("local search improved best")
	}
	return out
}

func (v *VDNS) adopt(s Solution) {
	v.best = s
	v.res.Improvements++
	v.res.TimeToBest = time.Since(v.start)
	v.res.RoundToBest = v.res.Rounds
}

func (v *VDNS) emit(kind string, s Solution, best float64) {
	size := v.clique
	if kind != model.KindOracle {
		size = 0
	}
	v.opts.Observer.Observe(Event{
		Kind:       kind,
		Round:      v.res.Rounds,
		CliqueSize: size,
		Elapsed:    time.Since(v.start),
		BestCost:   best,
		Solution:   s,
	})
}
