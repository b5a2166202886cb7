package repository

import (
	"database/sql"
	"fmt"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	record := &RunRecord{}
	err := row.Scan(
		&record.ID, &record.RunID, &record.SplitConfigDigest, &record.SplitConfigPath,
		&record.BaseTablePath, &record.Year, &record.Status, &record.ProxyLevelsLoaded,
		&record.LevelTimingMS, &record.ConservationSummary, &record.ErrorMessage,
		&record.StartedAt, &record.FinishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found")
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return record.ToModel()
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func checkRowsAffected(result sql.Result, runID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}
