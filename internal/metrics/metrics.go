package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vrpspd/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Runs counts finished searches by final status
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vdns_runs_total", Help: "Finished search runs by status."},
		[]string{"status"},
	)
	// RunsActive is the number of searches in progress
	RunsActive = prometheus.NewGauge(prometheus.GaugeOpts{Name: "vdns_runs_active", Help: "Search runs in progress."})
	// Rounds counts decomposition rounds by oracle outcome
	Rounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vdns_rounds_total", Help: "Decomposition rounds by oracle outcome."},
		[]string{"outcome"},
	)
	// OracleSeconds records the wall time of subproblem solves
	OracleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vdns_oracle_seconds", Help: "Subproblem solve time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	// CliqueSize tracks the subproblem size after each round
	CliqueSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "vdns_clique_size", Help: "Clique size after each round.",
		Buckets: prometheus.LinearBuckets(4, 4, 10),
	})
	// Improvements counts snapshots by kind
	Improvements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vdns_snapshots_total", Help: "Solutions reported by kind."},
		[]string{"kind"},
	)
	// BestCost is the best cost of the latest run per instance
	BestCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "vdns_best_cost", Help: "Best cost of the latest run per instance."},
		[]string{"instance"},
	)

	// SnapshotDeliveries counts snapshot sink writes by sink and status
	SnapshotDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "snapshot_deliveries_total", Help: "Snapshot deliveries by sink and status."},
		[]string{"sink", "status"},
	)
	// SnapshotLatency tracks snapshot sink write latencies in milliseconds
	SnapshotLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "snapshot_delivery_latency_ms", Help: "Snapshot delivery latency in ms.", Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000}},
		[]string{"sink", "status"},
	)
	// SnapshotsDropped counts snapshots rejected by a full queue
	SnapshotsDropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "snapshots_dropped_total", Help: "Snapshots dropped by a full queue."})
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Runs, RunsActive, Rounds, OracleSeconds, CliqueSize, Improvements, BestCost)
		Registry.MustRegister(SnapshotDeliveries, SnapshotLatency, SnapshotsDropped)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Observer records search events of a run on instance. Costs are divided by
// divisor before they are exported.
func Observer(instance string, divisor float64) opt.Observer {
	if divisor <= 0 {
		divisor = 1
	}
	return opt.ObserverFunc(func(ev opt.Event) {
		if ev.Kind == opt.EventRound {
			Rounds.WithLabelValues(ev.Outcome).Inc()
			OracleSeconds.Observe(ev.OracleTime.Seconds())
			CliqueSize.Observe(float64(ev.CliqueSize))
			return
		}
		Improvements.WithLabelValues(ev.Kind).Inc()
		BestCost.WithLabelValues(instance).Set(ev.BestCost / divisor)
	})
}
