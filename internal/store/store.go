package store

import (
	"context"
	"errors"
	"time"

	"vrpspd/internal/model"
)

// Store is the persistence interface used by the API server and the batch
// runner.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	FinishRun(ctx context.Context, id, status, errMsg string, summary *model.RunSummary, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (model.Run, error)
	ListRuns(ctx context.Context, instance, cursor string, limit int) ([]model.Run, string, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	ListSnapshots(ctx context.Context, runID string) ([]model.Snapshot, error)

	// Optimizer defaults applied to new runs
	GetOptimizerConfig(ctx context.Context) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, cfg map[string]any) error

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
