package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"vrpspd/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	runs   map[string]model.Run        // id -> run
	order  []string                    // run ids by creation
	snaps  map[string][]model.Snapshot // run id -> snapshots
	optCfg map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		runs:  map[string]model.Run{},
		snaps: map[string][]model.Snapshot{},
	}
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	return nil
}

func (m *Memory) FinishRun(ctx context.Context, id, status, errMsg string, summary *model.RunSummary, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.Error = errMsg
	if summary != nil {
		s := *summary
		r.Summary = &s
	}
	t := finishedAt
	r.FinishedAt = &t
	m.runs[id] = r
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns pages through runs in creation order. The cursor is the id of
// the last run of the previous page.
func (m *Memory) ListRuns(ctx context.Context, instance, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	start := 0
	if cursor != "" {
		for i, id := range m.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Run{}
	next := ""
	for _, id := range m.order[start:] {
		r := m.runs[id]
		if instance != "" && r.Instance != instance {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, r)
	}
	return out, next, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[snap.RunID]; !ok {
		return ErrNotFound
	}
	m.snaps[snap.RunID] = append(m.snaps[snap.RunID], snap)
	return nil
}

// ListSnapshots returns the snapshots of a run ordered by round.
func (m *Memory) ListSnapshots(ctx context.Context, runID string) ([]model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return nil, ErrNotFound
	}
	out := append([]model.Snapshot{}, m.snaps[runID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.optCfg == nil {
		return nil, nil
	}
	return maps.Clone(m.optCfg), nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg = maps.Clone(cfg)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
