package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&RunRecord{}))

	return db
}

func TestGormRunRepository_CreateRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	run := &Run{
		RunID:             "run-1",
		SplitConfigDigest: "abc123",
		SplitConfigPath:   "splits.yaml",
		BaseTablePath:     "base.csv",
		Year:              2015,
		ProxyLevelsLoaded: []int{1, 2, 5},
	}

	require.NoError(t, repo.CreateRun(ctx, run))

	fetched, err := repo.GetRunByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, fetched.Status)
	assert.Equal(t, []int{1, 2, 5}, fetched.ProxyLevelsLoaded)
}

func TestGormRunRepository_CompleteRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		err := repo.CompleteRun(ctx, "nonexistent", nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "run not found")
	})

	t.Run("Success", func(t *testing.T) {
		require.NoError(t, repo.CreateRun(ctx, &Run{RunID: "run-2", Year: 2015}))

		timing := map[string]int64{"level_1": 12, "level_18": 4}
		summary := map[string]interface{}{"max_deviation": 0.0}

		require.NoError(t, repo.CompleteRun(ctx, "run-2", timing, summary))

		fetched, err := repo.GetRunByRunID(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, RunStatusCompleted, fetched.Status)
		assert.Equal(t, int64(12), fetched.LevelTimingMS["level_1"])
		assert.NotNil(t, fetched.FinishedAt)
	})
}

func TestGormRunRepository_FailRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateRun(ctx, &Run{RunID: "run-3", Year: 2015}))
	require.NoError(t, repo.FailRun(ctx, "run-3", "proxy file missing sector"))

	fetched, err := repo.GetRunByRunID(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, fetched.Status)
	assert.Equal(t, "proxy file missing sector", fetched.ErrorMessage)
}

func TestGormRunRepository_GetRunByRunID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	run, err := repo.GetRunByRunID(ctx, "missing")
	assert.Error(t, err)
	assert.Nil(t, run)
}

func TestGormRunRepository_ListRecentRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateRun(ctx, &Run{RunID: "run-a", Year: 2011}))
	require.NoError(t, repo.CreateRun(ctx, &Run{RunID: "run-b", Year: 2012}))
	require.NoError(t, repo.CreateRun(ctx, &Run{RunID: "run-c", Year: 2013}))

	runs, err := repo.ListRecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
}
