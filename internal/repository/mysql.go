package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MySQLRunRepository implements RunRepository for MySQL using database/sql
// directly, mirroring GormRunRepository's raw-SQL counterpart.
type MySQLRunRepository struct {
	db *sql.DB
}

// NewMySQLRunRepository creates a new MySQLRunRepository.
func NewMySQLRunRepository(db *sql.DB) *MySQLRunRepository {
	return &MySQLRunRepository{db: db}
}

// CreateRun inserts a new run row in RunStatusRunning state.
func (r *MySQLRunRepository) CreateRun(ctx context.Context, run *Run) error {
	levels, err := json.Marshal(run.ProxyLevelsLoaded)
	if err != nil {
		return fmt.Errorf("failed to marshal proxy levels: %w", err)
	}

	query := `
		INSERT INTO disaggregation_run
			(run_id, split_config_digest, split_config_path, base_table_path, year, status, proxy_levels_loaded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.RunID, run.SplitConfigDigest, run.SplitConfigPath, run.BaseTablePath, run.Year, RunStatusRunning, levels)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun marks a run completed, attaching the final conservation
// summary and per-level timing.
func (r *MySQLRunRepository) CompleteRun(ctx context.Context, runID string, levelTimingMS map[string]int64, conservationSummary map[string]interface{}) error {
	timingJSON, err := json.Marshal(levelTimingMS)
	if err != nil {
		return fmt.Errorf("failed to marshal level timing: %w", err)
	}
	summaryJSON, err := json.Marshal(conservationSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal conservation summary: %w", err)
	}

	query := `
		UPDATE disaggregation_run
		SET status = ?, level_timing_ms = ?, conservation_summary = ?, finished_at = ?
		WHERE run_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, RunStatusCompleted, timingJSON, summaryJSON, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return checkRowsAffected(result, runID)
}

// FailRun marks a run failed with a diagnostic message.
func (r *MySQLRunRepository) FailRun(ctx context.Context, runID string, errMessage string) error {
	query := `
		UPDATE disaggregation_run
		SET status = ?, error_message = ?, finished_at = ?
		WHERE run_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, RunStatusFailed, errMessage, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	return checkRowsAffected(result, runID)
}

// GetRunByRunID retrieves a run by its run ID.
func (r *MySQLRunRepository) GetRunByRunID(ctx context.Context, runID string) (*Run, error) {
	query := `
		SELECT id, run_id, split_config_digest, split_config_path, base_table_path, year,
		       status, proxy_levels_loaded, level_timing_ms, conservation_summary,
		       COALESCE(error_message, ''), started_at, finished_at
		FROM disaggregation_run
		WHERE run_id = ?
	`
	row := r.db.QueryRowContext(ctx, query, runID)
	return scanRun(row)
}

// ListRecentRuns retrieves the most recent runs, newest first.
func (r *MySQLRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, run_id, split_config_digest, split_config_path, base_table_path, year,
		       status, proxy_levels_loaded, level_timing_ms, conservation_summary,
		       COALESCE(error_message, ''), started_at, finished_at
		FROM disaggregation_run
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}
