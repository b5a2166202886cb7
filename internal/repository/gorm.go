package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun inserts a new run row in RunStatusRunning state.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *Run) error {
	levels, err := json.Marshal(run.ProxyLevelsLoaded)
	if err != nil {
		return fmt.Errorf("failed to marshal proxy levels: %w", err)
	}

	record := &RunRecord{
		RunID:             run.RunID,
		SplitConfigDigest: run.SplitConfigDigest,
		SplitConfigPath:   run.SplitConfigPath,
		BaseTablePath:     run.BaseTablePath,
		Year:              run.Year,
		Status:            RunStatusRunning,
		ProxyLevelsLoaded: levels,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun marks a run completed, attaching the final conservation
// summary and per-level timing.
func (r *GormRunRepository) CompleteRun(ctx context.Context, runID string, levelTimingMS map[string]int64, conservationSummary map[string]interface{}) error {
	timingJSON, err := json.Marshal(levelTimingMS)
	if err != nil {
		return fmt.Errorf("failed to marshal level timing: %w", err)
	}
	summaryJSON, err := json.Marshal(conservationSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal conservation summary: %w", err)
	}

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":               RunStatusCompleted,
			"level_timing_ms":      timingJSON,
			"conservation_summary": summaryJSON,
			"finished_at":          now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// FailRun marks a run failed with a diagnostic message.
func (r *GormRunRepository) FailRun(ctx context.Context, runID string, errMessage string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":        RunStatusFailed,
			"error_message": errMessage,
			"finished_at":   now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to fail run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// GetRunByRunID retrieves a run by its run ID.
func (r *GormRunRepository) GetRunByRunID(ctx context.Context, runID string) (*Run, error) {
	var record RunRecord

	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return record.ToModel()
}

// ListRecentRuns retrieves the most recent runs, newest first.
func (r *GormRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	var records []RunRecord

	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*Run, len(records))
	for i, rec := range records {
		run, err := rec.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", rec.RunID, err)
		}
		runs[i] = run
	}

	return runs, nil
}
