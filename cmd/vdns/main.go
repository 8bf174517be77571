// Command vdns runs the decomposition search on benchmark instances and
// writes the .sol snapshots and .cnt summary of every execution.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"vrpspd/internal/buildinfo"
	"vrpspd/internal/config"
	"vrpspd/internal/export"
	"vrpspd/internal/instance"
	"vrpspd/internal/model"
	"vrpspd/internal/opt"
	"vrpspd/internal/oracle"
	"vrpspd/internal/snapshot"
	"vrpspd/internal/store"
)

type options struct {
	cfg       config.Config
	instances []string
	parallel  int
}

func main() {
	var (
		cfgPath   = flag.String("config", os.Getenv("VDNS_CONFIG"), "YAML or TOML config file")
		names     = flag.String("instance", "", "comma separated instance names or file paths")
		dir       = flag.String("dir", "", "instance directory (overrides config)")
		execs     = flag.Int("executions", 0, "executions per instance (overrides config)")
		budget    = flag.Duration("budget", 0, "time budget per execution (overrides config)")
		subBudget = flag.Duration("sub-budget", 0, "time limit per subproblem (overrides config)")
		orc       = flag.String("oracle", "", "subproblem solver: "+strings.Join(oracle.Names(), ", "))
		out       = flag.String("out", "", "output directory (overrides config)")
		seed      = flag.Int64("seed", 0, "base random seed; execution k uses seed+k")
		rounds    = flag.Int("max-rounds", 0, "stop after this many rounds")
		parallel  = flag.Int("parallel", 1, "executions run at the same time")
		version   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()
	if *version {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dir != "" {
		cfg.InstanceDir = *dir
	}
	if *execs > 0 {
		cfg.Search.Executions = *execs
	}
	if *budget > 0 {
		cfg.Search.TimeBudget = *budget
	}
	if *subBudget > 0 {
		cfg.Search.SubproblemBudget = *subBudget
	}
	if *orc != "" {
		cfg.Search.Oracle = *orc
	}
	if *out != "" {
		cfg.OutputDir = *out
	}
	if *seed != 0 {
		cfg.Search.Seed = *seed
	}
	if *rounds > 0 {
		cfg.Search.MaxRounds = *rounds
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	opts := options{cfg: cfg, parallel: max(*parallel, 1)}
	for _, n := range strings.Split(*names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			opts.instances = append(opts.instances, n)
		}
	}
	if len(opts.instances) == 0 {
		fmt.Fprintln(os.Stderr, "usage: vdns -instance CMT1X[,CMT2X...] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := cfg.Log.NewLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, logger); err != nil {
		logger.Fatal(err)
	}
}

// batch holds what every execution of a batch shares.
type batch struct {
	cfg    config.Config
	stamp  string
	log    *log.Logger
	store  store.Store
	redis  redis.UniversalClient
	failed sync.Map
}

func run(ctx context.Context, opts options, logger *log.Logger) error {
	b := &batch{cfg: opts.cfg, stamp: time.Now().Format(export.StampLayout), log: logger}
	if path := opts.cfg.Storage.SQLitePath; path != "" {
		st, err := store.NewSQLite(ctx, path)
		if err != nil {
			return err
		}
		defer st.Close()
		b.store = st
	}
	if url := opts.cfg.Storage.RedisURL; url != "" {
		ro, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(ro)
		defer rdb.Close()
		b.redis = rdb
	}

	instances := make([]*model.Instance, 0, len(opts.instances))
	for _, name := range opts.instances {
		in, err := load(opts.cfg.InstanceDir, name)
		if err != nil {
			return err
		}
		instances = append(instances, in)
	}

	pool, err := ants.NewPool(opts.parallel)
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, in := range instances {
		for k := 1; k <= opts.cfg.Search.Executions; k++ {
			in, k := in, k // per-iteration copies (go 1.21 loop semantics)
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				if err := b.execute(ctx, in, k); err != nil {
					b.failed.Store(fmt.Sprintf("%s/exec_%d", in.Name, k), err)
					b.log.WithError(err).WithFields(log.Fields{"instance": in.Name, "exec": k}).Error("execution failed")
				}
			}); err != nil {
				wg.Done()
				return err
			}
		}
	}
	wg.Wait()

	var failures []string
	b.failed.Range(func(k, _ any) bool {
		failures = append(failures, k.(string))
		return true
	})
	if len(failures) > 0 {
		return fmt.Errorf("%d executions failed: %s", len(failures), strings.Join(failures, ", "))
	}
	return nil
}

func load(dir, name string) (*model.Instance, error) {
	path := name
	if _, err := os.Stat(name); err != nil {
		if path, err = instance.Resolve(dir, name); err != nil {
			return nil, err
		}
	}
	return instance.Load(path)
}

func (b *batch) execute(ctx context.Context, in *model.Instance, k int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	dir := export.ExecDir(b.cfg.OutputDir, b.stamp, in.Name, k)
	logger := b.log.WithFields(log.Fields{"instance": in.Name, "exec": k})

	runID := uuid.Must(uuid.NewV7()).String()
	seed := b.cfg.Search.Seed
	if seed != 0 {
		seed += int64(k)
	} else {
		seed = time.Now().UnixNano() + int64(k)
	}

	sinks := []snapshot.Sink{snapshot.FileSink{Dir: dir}}
	if b.store != nil {
		if err := b.store.CreateRun(ctx, model.Run{
			ID:                 runID,
			Instance:           in.Name,
			Status:             model.RunRunning,
			Oracle:             b.cfg.Search.Oracle,
			Seed:               seed,
			TimeBudgetMs:       b.cfg.Search.TimeBudget.Milliseconds(),
			SubproblemBudgetMs: b.cfg.Search.SubproblemBudget.Milliseconds(),
			StartedAt:          time.Now().UTC(),
		}); err != nil {
			return err
		}
		sinks = append(sinks, snapshot.StoreSink{Store: b.store})
	}
	if b.redis != nil {
		sinks = append(sinks, snapshot.RedisSink{Client: b.redis})
	}
	worker, err := snapshot.NewWorker(sinks, snapshot.WorkerOptions{
		Queue:   b.cfg.Snapshots.Queue,
		Workers: b.cfg.Snapshots.Workers,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	orc, err := oracle.New(b.cfg.Search.Oracle, in, logger)
	if err != nil {
		worker.Close()
		return err
	}
	res, err := opt.NewVDNS(in, orc, opt.Options{
		TimeBudget:          b.cfg.Search.TimeBudget,
		SubproblemBudget:    b.cfg.Search.SubproblemBudget,
		Seed:                seed,
		NearestNeighborProb: b.cfg.Search.NearestNeighborProb,
		MaxRounds:           b.cfg.Search.MaxRounds,
		Observer:            worker.Observer(in, runID),
		Logger:              logger,
	}).Run(ctx)
	worker.Close()
	if dropped := worker.Dropped(); dropped > 0 {
		logger.WithField("dropped", dropped).Warn("snapshot queue overflowed")
	}

	status, msg := model.RunDone, ""
	var summary *model.RunSummary
	if err != nil {
		status, msg = model.RunFailed, err.Error()
	} else {
		s := export.Summary(in, res)
		summary = &s
		if _, werr := export.WriteSummaryFile(dir, in.Name, s); werr != nil {
			err = werr
		}
		logger.WithFields(log.Fields{"best": s.BestCost, "rounds": s.Rounds, "dir": dir}).Info("execution finished")
	}
	if b.store != nil {
		if ferr := b.store.FinishRun(context.Background(), runID, status, msg, summary, time.Now()); ferr != nil {
			logger.WithError(ferr).Warn("failed to record run")
		}
	}
	return err
}
