package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vrpspd/internal/instance"
	"vrpspd/internal/model"
	"vrpspd/internal/opt"
	"vrpspd/internal/store"
)

// SolveHandler handles POST /v1/solve. The search runs in the background;
// the response carries the run id.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "solve rate limit exceeded", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	in, err := s.loadInstance(&req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeProblem(w, status, "Invalid instance", err.Error(), r.URL.Path)
		return
	}

	p := s.params(r.Context(), &req)
	id, err := uuid.NewV7()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Run id failed", err.Error(), r.URL.Path)
		return
	}
	run := model.Run{
		ID:                 id.String(),
		Instance:           in.Name,
		Status:             model.RunRunning,
		Oracle:             p.Oracle,
		Seed:               p.Seed,
		TimeBudgetMs:       p.TimeBudget.Milliseconds(),
		SubproblemBudgetMs: p.SubproblemBudget.Milliseconds(),
		StartedAt:          time.Now().UTC(),
	}
	if err := s.Store.CreateRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}
	ctx := s.runs.start(run.ID)
	go s.execute(ctx, run, in, p)

	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run": run,
		"links": map[string]string{
			"self":      "/v1/runs/" + run.ID,
			"snapshots": "/v1/runs/" + run.ID + "/snapshots",
			"events":    "/v1/runs/" + run.ID + "/events/ws",
		},
	})
}

func (s *Server) loadInstance(req *model.SolveRequest) (*model.Instance, error) {
	if req.Instance != nil {
		return instance.FromSpec(req.Instance)
	}
	path, err := instance.Resolve(s.Config.InstanceDir, req.InstanceName)
	if err != nil {
		return nil, err
	}
	return instance.Load(path)
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), q.Get("instance"), q.Get("cursor"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles /v1/runs/{id} (GET, DELETE cancels) and its
// /snapshots, /metrics and /events/ws sub-resources.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	run, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", id, path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), path)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, run)
	case sub == "" && r.Method == http.MethodDelete:
		if !s.runs.cancel(id) {
			writeProblem(w, http.StatusConflict, "Run not active", "run "+id+" is "+run.Status, path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelled": true})
	case sub == "snapshots" && r.Method == http.MethodGet:
		snaps, err := s.Store.ListSnapshots(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List snapshots failed", err.Error(), path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": snaps})
	case sub == "metrics" && r.Method == http.MethodGet:
		m, ok := opt.GetMetrics(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "No metrics", "run "+id+" has not finished in this process", path)
			return
		}
		writeJSON(w, http.StatusOK, metricsJSON(m))
	case sub == "events/ws":
		s.EventsWSHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// InstanceMetricsHandler handles GET /v1/instances/{name}/metrics
func (s *Server) InstanceMetricsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	name, ok := strings.CutSuffix(rest, "/metrics")
	if !ok || name == "" || strings.Contains(name, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out := map[string]any{}
	for runID, m := range opt.InstanceMetrics(name) {
		out[runID] = metricsJSON(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"instance": name, "runs": out})
}

func metricsJSON(m opt.Metrics) map[string]any {
	return map[string]any{
		"oracleCalls":    m.OracleCalls,
		"oracleFailures": m.OracleFailures,
		"oracleTimeMs":   m.OracleTime.Milliseconds(),
		"expansions":     m.Expansions,
		"contractions":   m.Contractions,
	}
}

// OptimizerConfigHandler returns the search defaults (GET) or stores
// overrides applied to later runs (PUT).
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		defaults := map[string]any{
			"oracle":             s.Config.Search.Oracle,
			"timeBudgetMs":       s.Config.Search.TimeBudget.Milliseconds(),
			"subproblemBudgetMs": s.Config.Search.SubproblemBudget.Milliseconds(),
			"maxRounds":          s.Config.Search.MaxRounds,
			"seed":               s.Config.Search.Seed,
			"minCliqueSize":      opt.MinCliqueSize,
			"maxIncumbents":      opt.MaxIncumbents,
			"gapThreshold":       opt.GapThreshold,
		}
		cfg, err := s.Store.GetOptimizerConfig(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get config failed", err.Error(), r.URL.Path)
			return
		}
		// overlay stored config
		for k, v := range cfg {
			defaults[k] = v
		}
		writeJSON(w, http.StatusOK, map[string]any{"defaults": defaults})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateOptimizerConfig(body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if b, ok := s.Broker.(pinger); ok {
		if err := b.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
