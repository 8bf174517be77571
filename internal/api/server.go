package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"vrpspd/internal/config"
	"vrpspd/internal/metrics"
	"vrpspd/internal/model"
	"vrpspd/internal/snapshot"
	"vrpspd/internal/store"
)

type Server struct {
	Store     store.Store
	Broker    EventBroker
	Snapshots *snapshot.Worker
	Config    config.Config
	Log       log.FieldLogger

	limiter *rate.Limiter
	runs    *registry
}

// NewServer wires the store, broker and snapshot worker described by cfg.
// Without DATABASE_URL or a SQLite path runs are kept in memory; without
// REDIS_URL events are only streamed within this process.
func NewServer(ctx context.Context, cfg config.Config, logger log.FieldLogger) (*Server, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	var (
		st  store.Store
		err error
	)
	switch {
	case strings.TrimSpace(cfg.Storage.DatabaseURL) != "":
		st, err = store.NewPostgres(ctx, cfg.Storage.DatabaseURL)
	case cfg.Storage.SQLitePath != "":
		st, err = store.NewSQLite(ctx, cfg.Storage.SQLitePath)
	default:
		st = store.NewMemory()
	}
	if err != nil {
		return nil, err
	}

	var broker EventBroker = NewBroker()
	if cfg.Storage.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.Storage.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("redis broker unavailable, using in-memory broker")
		} else {
			broker = rb
		}
	}

	s := &Server{
		Store:   st,
		Broker:  broker,
		Config:  cfg,
		Log:     logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), cfg.Server.RateBurst),
		runs:    newRegistry(),
	}
	sinks := []snapshot.Sink{
		snapshot.StoreSink{Store: st},
		snapshot.SinkFunc{Label: "broker", Fn: s.publishSnapshot},
	}
	if cfg.Snapshots.WebhookURL != "" {
		sinks = append(sinks, snapshot.NewWebhookSink(cfg.Snapshots.WebhookURL, cfg.Snapshots.WebhookSecret))
	}
	s.Snapshots, err = snapshot.NewWorker(sinks, snapshot.WorkerOptions{
		Queue:   cfg.Snapshots.Queue,
		Workers: cfg.Snapshots.Workers,
		Logger:  logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	metrics.RegisterDefault()
	return s, nil
}

// Routes returns the HTTP handler of the service.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Runs
	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/runs", s.RunsHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /snapshots, /metrics, /events/ws
	mux.HandleFunc("/v1/instances/", s.InstanceMetricsHandler)
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)

	return s.instrument(mux)
}

// Close cancels running searches, flushes pending snapshots and releases
// the store and broker.
func (s *Server) Close() error {
	s.runs.cancelAll()
	s.runs.wait()
	s.Snapshots.Close()
	return errors.Join(s.Broker.Close(), s.Store.Close())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		path, code := routeLabel(r.URL.Path), strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
		s.Log.WithFields(log.Fields{
			"remote": r.RemoteAddr, "method": r.Method, "path": r.URL.Path, "status": rec.status, "duration": dur,
		}).Debug("request")
	})
}

// routeLabel replaces ids in paths to keep metric label cardinality low.
func routeLabel(path string) string {
	for _, prefix := range []string{"/v1/runs/", "/v1/instances/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if _, tail, found := strings.Cut(rest, "/"); found {
			return prefix + "{id}/" + tail
		}
		return prefix + "{id}"
	}
	return path
}

func (s *Server) publishSnapshot(ctx context.Context, snap model.Snapshot) error {
	s.Broker.Publish(snap.RunID, Event{Type: EventSnapshot, Data: snapshotData(snap)})
	return nil
}

func snapshotData(snap model.Snapshot) map[string]any {
	return map[string]any{
		"runId":      snap.RunID,
		"instance":   snap.Instance,
		"round":      snap.Round,
		"kind":       snap.Kind,
		"bestCost":   snap.BestCost,
		"totalCost":  snap.TotalCost,
		"lowerBound": snap.LowerBound,
		"gap":        snap.Gap,
		"status":     snap.Status,
		"processSec": snap.ProcessSec,
		"cliqueSize": snap.CliqueSize,
		"routes":     snap.Routes,
	}
}
