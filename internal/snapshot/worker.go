package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"vrpspd/internal/export"
	"vrpspd/internal/metrics"
	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

// WorkerOptions tunes a Worker. Zero values take defaults.
type WorkerOptions struct {
	Queue       int
	Workers     int
	Timeout     time.Duration
	MaxAttempts int
	Logger      log.FieldLogger
}

// Worker queues snapshots and writes them to its sinks on a goroutine pool.
// Enqueue never blocks; snapshots that do not fit in the queue are dropped
// and counted. Snapshots of one run are delivered one at a time in the order
// they were enqueued; different runs are delivered concurrently.
type Worker struct {
	sinks []Sink
	opts  WorkerOptions
	queue chan model.Snapshot
	pool  *ants.Pool
	log   log.FieldLogger

	inflight sync.WaitGroup
	done     chan struct{}
	closing  sync.Once
	mu       sync.RWMutex
	closed   bool

	lmu     sync.Mutex
	lanes   map[string]*lane
	pending int // over all lanes, bounded by opts.Queue

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// lane is the FIFO of one run.
type lane struct {
	queued  []model.Snapshot
	pending int // accepted, not yet delivered
	running bool
	idle    chan struct{} // closed when pending reaches zero
}

func NewWorker(sinks []Sink, opts WorkerOptions) (*Worker, error) {
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		sinks: sinks,
		opts:  opts,
		queue: make(chan model.Snapshot, opts.Queue),
		pool:  pool,
		log:   opts.Logger.WithField("component", "snapshots"),
		done:  make(chan struct{}),
		lanes: map[string]*lane{},
	}
	go w.dispatch()
	return w, nil
}

// Enqueue reports whether snap was accepted.
func (w *Worker) Enqueue(snap model.Snapshot) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop()
		return false
	}
	l, ok := w.track(snap.RunID)
	if !ok {
		w.drop()
		return false
	}
	select {
	case w.queue <- snap:
		return true
	default:
		w.settle(snap.RunID, l)
		w.drop()
		return false
	}
}

// Flush waits until every snapshot of runID accepted so far has been
// delivered to all sinks or given up on.
func (w *Worker) Flush(ctx context.Context, runID string) error {
	w.lmu.Lock()
	l, ok := w.lanes[runID]
	w.lmu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-l.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) track(runID string) (*lane, bool) {
	w.lmu.Lock()
	defer w.lmu.Unlock()
	if w.pending >= w.opts.Queue {
		return nil, false
	}
	l, ok := w.lanes[runID]
	if !ok {
		l = &lane{idle: make(chan struct{})}
		w.lanes[runID] = l
	}
	l.pending++
	w.pending++
	return l, true
}

func (w *Worker) settle(runID string, l *lane) {
	w.lmu.Lock()
	defer w.lmu.Unlock()
	l.pending--
	w.pending--
	if l.pending == 0 {
		close(l.idle)
		if w.lanes[runID] == l {
			delete(w.lanes, runID)
		}
	}
}

// Observer converts solution events of a run into snapshots. Round events
// carry no solution and are skipped.
func (w *Worker) Observer(in *model.Instance, runID string) opt.Observer {
	return opt.ObserverFunc(func(ev opt.Event) {
		if ev.Kind == opt.EventRound {
			return
		}
		w.Enqueue(export.Snapshot(in, runID, ev))
	})
}

func (w *Worker) dispatch() {
	defer close(w.done)
	for snap := range w.queue {
		snap := snap // per-iteration copy (go 1.21 loop semantics)
		w.lmu.Lock()
		l := w.lanes[snap.RunID]
		l.queued = append(l.queued, snap)
		start := !l.running
		l.running = true
		w.lmu.Unlock()
		if !start {
			continue
		}
		w.inflight.Add(1)
		if err := w.pool.Submit(func() {
			defer w.inflight.Done()
			w.drain(snap.RunID, l)
		}); err != nil {
			w.inflight.Done()
			w.log.WithError(err).Warn("snapshot pool rejected task")
			w.lmu.Lock()
			rejected := l.queued
			l.queued, l.running = nil, false
			w.lmu.Unlock()
			for range rejected {
				w.failed.Add(1)
				w.settle(snap.RunID, l)
			}
		}
	}
}

func (w *Worker) drain(runID string, l *lane) {
	for {
		w.lmu.Lock()
		if len(l.queued) == 0 {
			l.running = false
			w.lmu.Unlock()
			return
		}
		snap := l.queued[0]
		l.queued = l.queued[1:]
		w.lmu.Unlock()
		w.deliver(snap)
		w.settle(runID, l)
	}
}

func (w *Worker) deliver(snap model.Snapshot) {
	for _, s := range w.sinks {
		var err error
		start := time.Now()
		for attempt := 0; attempt < w.opts.MaxAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(nextBackoff(attempt - 1))
			}
			ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
			err = s.Write(ctx, snap)
			cancel()
			if err == nil {
				break
			}
		}
		status := "ok"
		if err != nil {
			status = "failed"
		}
		metrics.SnapshotDeliveries.WithLabelValues(s.Name(), status).Inc()
		metrics.SnapshotLatency.WithLabelValues(s.Name(), status).Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			w.failed.Add(1)
			w.log.WithError(err).WithFields(log.Fields{
				"sink": s.Name(), "run": snap.RunID, "round": snap.Round, "kind": snap.Kind,
			}).Warn("snapshot delivery failed")
			continue
		}
		w.delivered.Add(1)
	}
}

// Close stops accepting snapshots, drains the queue and waits for pending
// writes.
func (w *Worker) Close() {
	w.closing.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		<-w.done
		w.inflight.Wait()
		w.pool.Release()
	})
}

func (w *Worker) drop() {
	w.dropped.Add(1)
	metrics.SnapshotsDropped.Inc()
}

// Delivered counts successful sink writes.
func (w *Worker) Delivered() int64 { return w.delivered.Load() }

// Failed counts sink writes that gave up after all attempts.
func (w *Worker) Failed() int64 { return w.failed.Load() }

// Dropped counts snapshots rejected by Enqueue.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		attempts = 6
	}
	return 50 * time.Millisecond * time.Duration(1<<attempts)
}
