// Package store persists pipeline run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// RunRecord is the list view of a stored run.
type RunRecord struct {
	RunID         string
	State         domain.PipelineState
	Success       bool
	Iterations    int
	MaxIterations int
	Stages        []string
	TotalTokens   int64
	TotalCost     float64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			success INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			max_iterations INTEGER NOT NULL,
			stages JSON NOT NULL,
			total_tokens INTEGER NOT NULL,
			total_cost REAL NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			summary JSON NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate run store: %w", err)
		}
	}
	return nil
}

// SaveRun stores summary, replacing any earlier record with the same run ID.
func (s *Store) SaveRun(ctx context.Context, summary *domain.PipelineSummary) error {
	if summary == nil || summary.RunID == "" {
		return errors.New("save run: summary has no run ID")
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", summary.RunID, err)
	}
	stages, err := json.Marshal(summary.Stages)
	if err != nil {
		return fmt.Errorf("encode run %s stages: %w", summary.RunID, err)
	}

	const query = `INSERT OR REPLACE INTO pipeline_runs (
		run_id, state, success, iterations, max_iterations, stages, total_tokens, total_cost, started_at, finished_at, summary
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		summary.RunID,
		string(summary.State),
		summary.Success,
		summary.Iterations,
		summary.MaxIterations,
		string(stages),
		summary.TotalTokens(),
		summary.TotalCost(),
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	return nil
}

// GetRun loads the full summary of one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.PipelineSummary, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM pipeline_runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	var summary domain.PipelineSummary
	if err := json.Unmarshal([]byte(body), &summary); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &summary, nil
}

// ListRuns returns up to limit runs, newest first. A limit below 1 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit < 1 {
		limit = -1
	}
	const query = `
	SELECT run_id, state, success, iterations, max_iterations, stages, total_tokens, total_cost, started_at, finished_at
	FROM pipeline_runs
	ORDER BY started_at DESC, run_id
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []RunRecord{}
	for rows.Next() {
		var (
			r                 RunRecord
			state, stages     string
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &state, &r.Success, &r.Iterations, &r.MaxIterations,
			&stages, &r.TotalTokens, &r.TotalCost, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.State = domain.PipelineState(state)
		if err := json.Unmarshal([]byte(stages), &r.Stages); err != nil {
			return nil, fmt.Errorf("decode stages of run %s: %w", r.RunID, err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", r.RunID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of run %s: %w", r.RunID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return records, nil
}
