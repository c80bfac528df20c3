// Package catalog records simulation runs and their quality metrics in a
// SQLite database so results can be listed and compared later.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ctraysim/pkg/config"
	"ctraysim/pkg/reconstruction"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("catalog: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	created_at    TIMESTAMP NOT NULL,
	phantom       TEXT NOT NULL,
	filter        TEXT NOT NULL,
	num_angles    INTEGER NOT NULL,
	num_detectors INTEGER NOT NULL,
	scanner       TEXT NOT NULL,
	metrics       TEXT NOT NULL,
	output_dir    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
`

// Run is one catalogued simulation.
type Run struct {
	ID        string                           `json:"run_id"`
	CreatedAt time.Time                        `json:"created_at"`
	Phantom   string                           `json:"phantom"`
	Filter    string                           `json:"filter"`
	Scanner   config.Scanner                   `json:"scanner"`
	Metrics   reconstruction.ValidationMetrics `json:"metrics"`
	OutputDir string                           `json:"output_dir,omitempty"`
}

// Catalog is a handle on the run database.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at path. Use ":memory:" for a throwaway
// database.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Record stores run and returns its newly assigned ID. CreatedAt defaults
// to the current time.
func (c *Catalog) Record(ctx context.Context, run Run) (string, error) {
	run.ID = uuid.NewString()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	scannerJSON, err := json.Marshal(run.Scanner)
	if err != nil {
		return "", fmt.Errorf("failed to encode scanner: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, phantom, filter, num_angles, num_detectors, scanner, metrics, output_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Phantom, run.Filter,
		run.Scanner.NumAngles, run.Scanner.NumDetectors,
		string(scannerJSON), string(metrics), run.OutputDir)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return run.ID, nil
}

const selectRuns = `SELECT run_id, created_at, phantom, filter, scanner, metrics, output_dir FROM runs`

// List returns up to limit runs, newest first. A non-positive limit returns
// every run.
func (c *Catalog) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (Run, error) {
	row := c.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run         Run
		scannerJSON string
		metricsJSON string
		outputDir   sql.NullString
	)
	if err := s.Scan(&run.ID, &run.CreatedAt, &run.Phantom, &run.Filter, &scannerJSON, &metricsJSON, &outputDir); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(scannerJSON), &run.Scanner); err != nil {
		return Run{}, fmt.Errorf("corrupt scanner for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return Run{}, fmt.Errorf("corrupt metrics for run %s: %w", run.ID, err)
	}
	run.OutputDir = outputDir.String
	return run, nil
}
