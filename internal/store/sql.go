package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vrpspd/internal/model"
)

// Dialect selects placeholder syntax and schema for a database/sql driver.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// SQL implements Store on database/sql. Queries are written with $n
// placeholders; SQLite receives them as ?n.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database. It does not migrate.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) rebind(q string) string {
	if s.dialect == DialectSQLite {
		return strings.ReplaceAll(q, "$", "?")
	}
	return q
}

const schemaVersion = 1

func (s *SQL) schema() []string {
	ts, serial := "TIMESTAMPTZ", "BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		ts, serial = "TIMESTAMP", "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			instance TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			oracle TEXT NOT NULL,
			seed BIGINT NOT NULL,
			time_budget_ms BIGINT NOT NULL,
			subproblem_budget_ms BIGINT NOT NULL,
			started_at ` + ts + ` NOT NULL,
			finished_at ` + ts + `,
			summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS runs_instance_idx ON runs (instance, id)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id ` + serial + `,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			instance TEXT NOT NULL,
			round INTEGER NOT NULL,
			kind TEXT NOT NULL,
			best_cost DOUBLE PRECISION NOT NULL,
			total_cost DOUBLE PRECISION NOT NULL,
			lower_bound DOUBLE PRECISION NOT NULL,
			gap DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			creation_sec DOUBLE PRECISION NOT NULL,
			solving_sec DOUBLE PRECISION NOT NULL,
			process_sec DOUBLE PRECISION NOT NULL,
			clique_size INTEGER NOT NULL,
			routes TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_run_idx ON snapshots (run_id, round)`,
		`CREATE TABLE IF NOT EXISTS optimizer_config (
			key TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			updated_at ` + ts + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// Migrate creates the tables when the recorded schema version is older than
// the current one.
func (s *SQL) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range s.schema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	if version < schemaVersion {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_version (version) VALUES ($1)`), schemaVersion); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQL) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO runs
		(id, instance, status, error, oracle, seed, time_budget_ms, subproblem_budget_ms, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`),
		run.ID, run.Instance, run.Status, run.Error, run.Oracle, run.Seed,
		run.TimeBudgetMs, run.SubproblemBudgetMs, run.StartedAt.UTC())
	return err
}

func (s *SQL) FinishRun(ctx context.Context, id, status, errMsg string, summary *model.RunSummary, finishedAt time.Time) error {
	var js sql.NullString
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		js = sql.NullString{String: string(b), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE runs SET status=$1, error=$2, summary=$3, finished_at=$4 WHERE id=$5`),
		status, errMsg, js, finishedAt.UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, instance, status, error, oracle, seed, time_budget_ms, subproblem_budget_ms, started_at, finished_at, summary`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var (
		r        model.Run
		finished sql.NullTime
		summary  sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Instance, &r.Status, &r.Error, &r.Oracle, &r.Seed,
		&r.TimeBudgetMs, &r.SubproblemBudgetMs, &r.StartedAt, &finished, &summary); err != nil {
		return r, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if summary.Valid && summary.String != "" {
		var sum model.RunSummary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return r, fmt.Errorf("run %s summary: %w", r.ID, err)
		}
		r.Summary = &sum
	}
	return r, nil
}

func (s *SQL) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE id=$1`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns pages by id. Run ids are time ordered so pages follow creation.
func (s *SQL) ListRuns(ctx context.Context, instance, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}
	idx := 1
	if instance != "" {
		q += ` AND instance=$` + fmt.Sprint(idx)
		args = append(args, instance)
		idx++
	}
	if cursor != "" {
		q += ` AND id > $` + fmt.Sprint(idx)
		args = append(args, cursor)
		idx++
	}
	q += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func (s *SQL) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	routes, err := json.Marshal(snap.Routes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var one int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM runs WHERE id=$1`), snap.RunID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO snapshots
		(run_id, instance, round, kind, best_cost, total_cost, lower_bound, gap, status,
		 creation_sec, solving_sec, process_sec, clique_size, routes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`),
		snap.RunID, snap.Instance, snap.Round, snap.Kind, snap.BestCost, snap.TotalCost,
		snap.LowerBound, snap.Gap, snap.Status, snap.CreationSec, snap.SolvingSec,
		snap.ProcessSec, snap.CliqueSize, string(routes), created.UTC())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) ListSnapshots(ctx context.Context, runID string) ([]model.Snapshot, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT run_id, instance, round, kind, best_cost, total_cost,
		lower_bound, gap, status, creation_sec, solving_sec, process_sec, clique_size, routes, created_at
		FROM snapshots WHERE run_id=$1 ORDER BY round, id`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Snapshot{}
	for rows.Next() {
		var (
			sn     model.Snapshot
			routes string
		)
		if err := rows.Scan(&sn.RunID, &sn.Instance, &sn.Round, &sn.Kind, &sn.BestCost, &sn.TotalCost,
			&sn.LowerBound, &sn.Gap, &sn.Status, &sn.CreationSec, &sn.SolvingSec, &sn.ProcessSec,
			&sn.CliqueSize, &routes, &sn.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(routes), &sn.Routes); err != nil {
			return nil, fmt.Errorf("snapshot routes: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

const configKey = "default"

func (s *SQL) GetOptimizerConfig(ctx context.Context) (map[string]any, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT config FROM optimizer_config WHERE key=$1`), configKey)
	var js string
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SQL) SaveOptimizerConfig(ctx context.Context, cfg map[string]any) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO optimizer_config (key, config, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET config=excluded.config, updated_at=CURRENT_TIMESTAMP`), configKey, string(js))
	return err
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }
