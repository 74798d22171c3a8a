// Package store keeps the run history used for period-over-period growth and
// customer movements.
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

	"github.com/chrisconley/arrbucket/specs"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunStore persists each run's reconciliation in SQLite.
type RunStore struct {
	db *sql.DB
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID       string
	Period      string
	Healthy     bool
	GeneratedAt time.Time
}

// Open opens or creates the history database at path.
func Open(path string) (*RunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &RunStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		healthy INTEGER NOT NULL,
		generated_at TEXT NOT NULL,
		reconciliation_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_period ON runs(period, healthy, generated_at);
	CREATE TABLE IF NOT EXISTS customer_buckets (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		entity TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		bucket TEXT NOT NULL,
		arr TEXT NOT NULL,
		PRIMARY KEY (run_id, entity)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Save records the report's reconciliation and customer positions under its run ID.
func (s *RunStore) Save(ctx context.Context, report specs.ReportSpec) error {
	if report.RunID == "" || report.Period == "" {
		return fmt.Errorf("report needs a run ID and a period")
	}
	data, err := json.Marshal(report.Reconciliation)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, period, healthy, generated_at, reconciliation_json) VALUES (?, ?, ?, ?, ?)`,
		report.RunID, report.Period, report.Healthy, report.GeneratedAt.UTC().Format(timeLayout), string(data))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO customer_buckets (run_id, entity, customer_id, bucket, arr) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare positions: %w", err)
	}
	defer stmt.Close()
	for _, p := range report.Positions {
		if _, err := stmt.ExecContext(ctx, report.RunID, p.Entity, p.CustomerID, p.Bucket, p.ARR); err != nil {
			return fmt.Errorf("failed to save position of %s in run %s: %w", p.Entity, report.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", report.RunID, err)
	}
	return nil
}

// Load returns the latest healthy reconciliation recorded for period.
// The boolean is false when there is none.
func (s *RunStore) Load(ctx context.Context, period string) (*specs.ReconciliationResultSpec, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT reconciliation_json FROM runs
		 WHERE period = ? AND healthy = 1
		 ORDER BY generated_at DESC LIMIT 1`, period)
	return scanReconciliation(row)
}

// LatestBefore returns the latest healthy reconciliation of the most recent period
// before period.
func (s *RunStore) LatestBefore(ctx context.Context, period string) (*specs.ReconciliationResultSpec, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT reconciliation_json FROM runs
		 WHERE period < ? AND healthy = 1
		 ORDER BY period DESC, generated_at DESC LIMIT 1`, period)
	return scanReconciliation(row)
}

// Positions returns the customer positions of the latest healthy run of period,
// in the order they were saved. The boolean is false when no healthy run exists.
func (s *RunStore) Positions(ctx context.Context, period string) ([]specs.CustomerPositionSpec, bool, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs
		 WHERE period = ? AND healthy = 1
		 ORDER BY generated_at DESC LIMIT 1`, period).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find run for %s: %w", period, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity, customer_id, bucket, arr FROM customer_buckets
		 WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load positions of run %s: %w", runID, err)
	}
	defer rows.Close()

	positions := make([]specs.CustomerPositionSpec, 0)
	for rows.Next() {
		var p specs.CustomerPositionSpec
		if err := rows.Scan(&p.Entity, &p.CustomerID, &p.Bucket, &p.ARR); err != nil {
			return nil, false, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return positions, true, nil
}

// Returning lists the entities held by any healthy run of a period before period.
func (s *RunStore) Returning(ctx context.Context, period string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT c.entity FROM customer_buckets c
		 JOIN runs r ON r.run_id = c.run_id
		 WHERE r.period < ? AND r.healthy = 1
		 ORDER BY c.entity`, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list returning entities: %w", err)
	}
	defer rows.Close()

	var entities []string
	for rows.Next() {
		var entity string
		if err := rows.Scan(&entity); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// Runs lists the history, newest first.
func (s *RunStore) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, period, healthy, generated_at FROM runs ORDER BY generated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var generatedAt string
		if err := rows.Scan(&r.RunID, &r.Period, &r.Healthy, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.GeneratedAt, err = time.Parse(timeLayout, generatedAt); err != nil {
			return nil, fmt.Errorf("run %s: invalid timestamp: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanReconciliation(row *sql.Row) (*specs.ReconciliationResultSpec, bool, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load run: %w", err)
	}

	var result specs.ReconciliationResultSpec
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode run: %w", err)
	}
	return &result, true, nil
}
