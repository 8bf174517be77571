package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vrpspd/internal/export"
	"vrpspd/internal/metrics"
	"vrpspd/internal/model"
	"vrpspd/internal/opt"
	"vrpspd/internal/oracle"
)

const flushTimeout = 10 * time.Second

// registry tracks the searches started by this process.
type registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{cancels: map[string]context.CancelFunc{}}
}

func (r *registry) start(id string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
	r.wg.Add(1)
	return ctx
}

func (r *registry) done(id string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	r.wg.Done()
}

// cancel reports whether id was running here.
func (r *registry) cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

func (r *registry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
}

func (r *registry) wait() { r.wg.Wait() }

// runParams are the search settings of one run after defaults, stored
// optimizer config and request overrides are applied.
type runParams struct {
	Oracle           string
	TimeBudget       time.Duration
	SubproblemBudget time.Duration
	Seed             int64
	MaxRounds        int
}

func (s *Server) params(ctx context.Context, req *model.SolveRequest) runParams {
	p := runParams{
		Oracle:           s.Config.Search.Oracle,
		TimeBudget:       s.Config.Search.TimeBudget,
		SubproblemBudget: s.Config.Search.SubproblemBudget,
		Seed:             s.Config.Search.Seed,
		MaxRounds:        s.Config.Search.MaxRounds,
	}
	if stored, err := s.Store.GetOptimizerConfig(ctx); err != nil {
		s.Log.WithError(err).Warn("optimizer config unavailable")
	} else {
		overlayConfig(&p, stored)
	}
	if req.Oracle != "" {
		p.Oracle = req.Oracle
	}
	if req.TimeBudgetMs > 0 {
		p.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	if req.SubproblemBudgetMs > 0 {
		p.SubproblemBudget = time.Duration(req.SubproblemBudgetMs) * time.Millisecond
	}
	if req.Seed != 0 {
		p.Seed = req.Seed
	}
	if req.MaxRounds > 0 {
		p.MaxRounds = req.MaxRounds
	}
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
	return p
}

func overlayConfig(p *runParams, cfg map[string]any) {
	if v, ok := cfg["oracle"].(string); ok && v != "" {
		p.Oracle = v
	}
	if v, ok := number(cfg["timeBudgetMs"]); ok && v > 0 {
		p.TimeBudget = time.Duration(v) * time.Millisecond
	}
	if v, ok := number(cfg["subproblemBudgetMs"]); ok && v > 0 {
		p.SubproblemBudget = time.Duration(v) * time.Millisecond
	}
	if v, ok := number(cfg["maxRounds"]); ok && v > 0 {
		p.MaxRounds = int(v)
	}
	if v, ok := number(cfg["seed"]); ok && v != 0 {
		p.Seed = v
	}
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// execute runs the search of run and records its outcome. It is called on
// its own goroutine.
func (s *Server) execute(ctx context.Context, run model.Run, in *model.Instance, p runParams) {
	defer s.runs.done(run.ID)
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	logger := s.Log.WithFields(log.Fields{"run": run.ID, "instance": in.Name, "oracle": p.Oracle})
	status, errMsg := model.RunDone, ""
	var summary *model.RunSummary

	orc, err := oracle.New(p.Oracle, in, logger)
	if err == nil {
		v := opt.NewVDNS(in, orc, opt.Options{
			TimeBudget:       p.TimeBudget,
			SubproblemBudget: p.SubproblemBudget,
			Seed:             p.Seed,
			MaxRounds:        p.MaxRounds,
			Observer: opt.Observers{
				s.Snapshots.Observer(in, run.ID),
				metrics.Observer(in.Name, in.CostDivisor()),
			},
			Logger: logger,
		})
		var res opt.Result
		res, err = v.Run(ctx)
		if err == nil {
			sum := export.Summary(in, res)
			summary = &sum
			opt.RecordMetrics(in.Name, run.ID, res.Metrics)
		}
	}
	if err != nil {
		status, errMsg = model.RunFailed, err.Error()
		logger.WithError(err).Warn("run failed")
	}

	// run.finished closes event streams, so it must follow the snapshots
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
	if err := s.Snapshots.Flush(flushCtx, run.ID); err != nil {
		logger.WithError(err).Warn("snapshots still pending at run end")
	}
	cancelFlush()

	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.FinishRun(fctx, run.ID, status, errMsg, summary, time.Now()); err != nil {
		logger.WithError(err).Error("failed to record run outcome")
	}
	metrics.Runs.WithLabelValues(status).Inc()

	data := map[string]any{"runId": run.ID, "status": status}
	if errMsg != "" {
		data["error"] = errMsg
	}
	if summary != nil {
		data["summary"] = summary
	}
	s.Broker.Publish(run.ID, Event{Type: EventRunFinished, Data: data})
}
