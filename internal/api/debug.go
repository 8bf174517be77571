package api

import (
	"net/http"
	"time"

	"vrpspd/internal/buildinfo"
	"vrpspd/internal/oracle"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                   cfg.Server.Port,
			"RATE_RPS":               cfg.Server.RateRPS,
			"RATE_BURST":             cfg.Server.RateBurst,
			"VDNS_ORACLE":            cfg.Search.Oracle,
			"VDNS_TIME_BUDGET":       cfg.Search.TimeBudget.String(),
			"VDNS_SUBPROBLEM_BUDGET": cfg.Search.SubproblemBudget.String(),
			"VDNS_INSTANCE_DIR":      cfg.InstanceDir,
			"HAS_DATABASE_URL":       cfg.Storage.DatabaseURL != "",
			"HAS_SQLITE_PATH":        cfg.Storage.SQLitePath != "",
			"HAS_REDIS_URL":          cfg.Storage.RedisURL != "",
			"HAS_WEBHOOK":            cfg.Snapshots.WebhookURL != "",
		},
		"oracles": oracle.Names(),
		"snapshots": map[string]int64{
			"delivered": s.Snapshots.Delivered(),
			"failed":    s.Snapshots.Failed(),
			"dropped":   s.Snapshots.Dropped(),
		},
	})
}
