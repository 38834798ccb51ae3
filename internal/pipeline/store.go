// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates the scan analysis stages and persists
// run state so interrupted work can resume where it stopped.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "pipeline.db"
)

// Store manages the pipeline run index SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the run index at dataDir/index/pipeline.db,
// creating the schema if it does not exist.
func NewStore(dataDir string) (*Store, error) {
	dbDir := filepath.Join(dataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			scan_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			failed_stage TEXT,
			error TEXT,
			config_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			scan_id TEXT NOT NULL REFERENCES runs(scan_id),
			stage TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (scan_id, stage)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun upserts a run record.
func (s *Store) SaveRun(ctx context.Context, run *types.PipelineRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (scan_id, status, stage, failed_stage, error, config_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scan_id) DO UPDATE SET
			status=excluded.status, stage=excluded.stage,
			failed_stage=excluded.failed_stage, error=excluded.error,
			config_hash=excluded.config_hash, updated_at=excluded.updated_at`,
		run.ScanID, string(run.Status), string(run.Stage),
		string(run.FailedStage), run.Error, run.ConfigHash,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", run.ScanID, err)
	}
	return nil
}

// GetRun loads one run record. Returns (nil, nil) when no run exists
// for the scan.
func (s *Store) GetRun(ctx context.Context, scanID string) (*types.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT scan_id, status, stage, failed_stage, error, config_hash, created_at, updated_at
		 FROM runs WHERE scan_id = ?`, scanID)

	var run types.PipelineRun
	var status, stage, failedStage, createdAt, updatedAt string
	err := row.Scan(&run.ScanID, &status, &stage, &failedStage, &run.Error, &run.ConfigHash, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", scanID, err)
	}

	run.Status = types.RunStatus(status)
	run.Stage = types.Stage(stage)
	run.FailedStage = types.Stage(failedStage)
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", scanID, err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", scanID, err)
	}
	return &run, nil
}

// ListRuns returns all run records ordered by last update, newest
// first.
func (s *Store) ListRuns(ctx context.Context) ([]*types.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scan_id FROM runs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	runs := make([]*types.PipelineRun, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// SaveArtifact records that a stage produced its artifact at path.
func (s *Store) SaveArtifact(ctx context.Context, scanID string, stage types.Stage, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (scan_id, stage, path, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(scan_id, stage) DO UPDATE SET
			path=excluded.path, created_at=excluded.created_at`,
		scanID, string(stage), path, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording artifact for %s/%s: %w", scanID, stage, err)
	}
	return nil
}

// ArtifactPath returns the recorded artifact path for a stage, or ""
// when the stage has no recorded artifact.
func (s *Store) ArtifactPath(ctx context.Context, scanID string, stage types.Stage) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM artifacts WHERE scan_id = ? AND stage = ?`,
		scanID, string(stage)).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading artifact for %s/%s: %w", scanID, stage, err)
	}
	return path, nil
}

// DeleteArtifacts drops all artifact records for a scan. The files on
// disk are removed by the orchestrator, which knows the result layout.
func (s *Store) DeleteArtifacts(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("deleting artifacts for %s: %w", scanID, err)
	}
	return nil
}
