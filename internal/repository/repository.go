// Package repository provides database abstraction for the disaggregation
// run-history store.
package repository

import "context"

// RunRepository defines the interface for run-history operations.
type RunRepository interface {
	// CreateRun inserts a new run row in RunStatusRunning state.
	CreateRun(ctx context.Context, run *Run) error

	// CompleteRun marks a run completed, attaching the final conservation
	// summary and per-level timing.
	CompleteRun(ctx context.Context, runID string, levelTimingMS map[string]int64, conservationSummary map[string]interface{}) error

	// FailRun marks a run failed with a diagnostic message.
	FailRun(ctx context.Context, runID string, errMessage string) error

	// GetRunByRunID retrieves a run by its run ID.
	GetRunByRunID(ctx context.Context, runID string) (*Run, error)

	// ListRecentRuns retrieves the most recent runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]*Run, error)
}
