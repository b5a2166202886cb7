package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRunRepository_CreateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	run := &Run{
		RunID:             "run-1",
		SplitConfigDigest: "abc123",
		SplitConfigPath:   "splits.yaml",
		BaseTablePath:     "base.csv",
		Year:              2015,
		ProxyLevelsLoaded: []int{1, 5, 18},
	}

	mock.ExpectExec("INSERT INTO disaggregation_run").
		WithArgs(run.RunID, run.SplitConfigDigest, run.SplitConfigPath, run.BaseTablePath,
			run.Year, RunStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateRun(context.Background(), run))
}

func TestPostgresRunRepository_CompleteRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE disaggregation_run").
			WithArgs(RunStatusCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "run-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CompleteRun(context.Background(), "run-1", map[string]int64{"level_1": 3}, nil)
		require.NoError(t, err)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE disaggregation_run").
			WithArgs(RunStatusCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.CompleteRun(context.Background(), "missing", nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "run not found")
	})
}

func TestPostgresRunRepository_FailRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	mock.ExpectExec("UPDATE disaggregation_run").
		WithArgs(RunStatusFailed, "proxy file missing sector", sqlmock.AnyArg(), "run-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.FailRun(context.Background(), "run-2", "proxy file missing sector")
	require.NoError(t, err)
}

func TestPostgresRunRepository_GetRunByRunID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "run_id", "split_config_digest", "split_config_path", "base_table_path", "year",
		"status", "proxy_levels_loaded", "level_timing_ms", "conservation_summary",
		"error_message", "started_at", "finished_at",
	}).AddRow(
		int64(1), "run-3", "abc123", "splits.yaml", "base.csv", 2015,
		RunStatusCompleted, []byte("[1,5]"), []byte(`{"level_1":3}`), []byte(`{"max_deviation":0}`),
		"", time.Now(), nil,
	)

	mock.ExpectQuery("SELECT id, run_id").WithArgs("run-3").WillReturnRows(rows)

	run, err := repo.GetRunByRunID(context.Background(), "run-3")
	require.NoError(t, err)
	assert.Equal(t, "run-3", run.RunID)
	assert.Equal(t, []int{1, 5}, run.ProxyLevelsLoaded)
}

func TestPostgresRunRepository_ListRecentRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRunRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "run_id", "split_config_digest", "split_config_path", "base_table_path", "year",
		"status", "proxy_levels_loaded", "level_timing_ms", "conservation_summary",
		"error_message", "started_at", "finished_at",
	}).AddRow(
		int64(2), "run-b", "", "", "", 2012,
		RunStatusRunning, nil, nil, nil, "", time.Now(), nil,
	).AddRow(
		int64(1), "run-a", "", "", "", 2011,
		RunStatusRunning, nil, nil, nil, "", time.Now(), nil,
	)

	mock.ExpectQuery("SELECT id, run_id").WithArgs(2).WillReturnRows(rows)

	runs, err := repo.ListRecentRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
}
