// Package repository provides database abstraction for the disaggregation
// run-history store: one row per invocation of the `refine` pipeline.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a refine invocation.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord represents the disaggregation_run table: an audit row for one
// `refine` invocation, covering the split config used, which proxy levels
// were applicable, per-level timing, and the final conservation summary.
// Unlike the original libmrio's checkpointing (which persists run state so a
// long simulation can resume), this system's refine pass always runs to
// completion in one process (spec.md §5 forbids mid-run cancellation), so
// the record exists purely as an audit trail, not a resumption point.
type RunRecord struct {
	ID                  int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID               string     `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	SplitConfigDigest   string     `gorm:"column:split_config_digest;type:varchar(64)"`
	SplitConfigPath     string     `gorm:"column:split_config_path;type:varchar(512)"`
	BaseTablePath       string     `gorm:"column:base_table_path;type:varchar(512)"`
	Year                int        `gorm:"column:year"`
	Status              RunStatus  `gorm:"column:status;type:varchar(16)"`
	ProxyLevelsLoaded   JSONField  `gorm:"column:proxy_levels_loaded;type:json"`
	LevelTimingMS       JSONField  `gorm:"column:level_timing_ms;type:json"`
	ConservationSummary JSONField  `gorm:"column:conservation_summary;type:json"`
	ErrorMessage        string     `gorm:"column:error_message;type:text"`
	StartedAt           time.Time  `gorm:"column:started_at;autoCreateTime"`
	FinishedAt          *time.Time `gorm:"column:finished_at"`
}

// TableName returns the table name for RunRecord.
func (RunRecord) TableName() string {
	return "disaggregation_run"
}

// ToModel converts a RunRecord to a Run for callers outside the repository
// package; JSON columns are decoded into their natural Go shapes.
func (r *RunRecord) ToModel() (*Run, error) {
	run := &Run{
		ID:                r.ID,
		RunID:             r.RunID,
		SplitConfigDigest: r.SplitConfigDigest,
		SplitConfigPath:   r.SplitConfigPath,
		BaseTablePath:     r.BaseTablePath,
		Year:              r.Year,
		Status:            r.Status,
		ErrorMessage:      r.ErrorMessage,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}

	if r.ProxyLevelsLoaded != nil {
		if err := json.Unmarshal(r.ProxyLevelsLoaded, &run.ProxyLevelsLoaded); err != nil {
			return nil, err
		}
	}
	if r.LevelTimingMS != nil {
		if err := json.Unmarshal(r.LevelTimingMS, &run.LevelTimingMS); err != nil {
			return nil, err
		}
	}
	if r.ConservationSummary != nil {
		if err := json.Unmarshal(r.ConservationSummary, &run.ConservationSummary); err != nil {
			return nil, err
		}
	}

	return run, nil
}

// Run is the repository-external view of a RunRecord, with JSON columns
// already decoded.
type Run struct {
	ID                  int64
	RunID               string
	SplitConfigDigest   string
	SplitConfigPath     string
	BaseTablePath       string
	Year                int
	Status              RunStatus
	ProxyLevelsLoaded   []int
	LevelTimingMS       map[string]int64
	ConservationSummary map[string]interface{}
	ErrorMessage        string
	StartedAt           time.Time
	FinishedAt          *time.Time
}

// JSONField is a custom type for handling JSON columns across backends.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
