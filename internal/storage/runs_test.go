package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

var _ batch.RunStore = (*Database)(nil)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(config.DatabaseConfig{Type: DBTypeSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createRun(t *testing.T, db *Database, id string, started time.Time) *models.Run {
	t.Helper()
	run := &models.Run{
		RunID:     id,
		BaseURL:   "https://example.jamfcloud.com",
		ClientID:  "client",
		Status:    models.RunStatusRunning,
		Total:     2,
		StartedAt: started,
	}
	require.NoError(t, db.CreateRun(context.Background(), run))
	return run
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)

	run := createRun(t, db, "run-1", started)
	assert.NotZero(t, run.ID)

	name := "Bobs-Mac"
	require.NoError(t, db.SaveResult(ctx, &models.RunResult{
		RunID: "run-1", RecordID: "r2", Position: 1, SerialNumber: "S2",
		Status: models.StatusFailed, ErrorMessage: models.MessageComputerNotFound,
	}))
	require.NoError(t, db.SaveResult(ctx, &models.RunResult{
		RunID: "run-1", RecordID: "r1", Position: 0, SerialNumber: "S1", ComputerName: &name,
		ComputerID: "42", Status: models.StatusCompleted,
	}))

	finished := started.Add(2 * time.Second)
	require.NoError(t, db.FinishRun(ctx, "run-1", models.RunStatusCompleted, 1, 1, finished))

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 1, got.Failed)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))

	require.Len(t, got.Results, 2)
	assert.Equal(t, "S1", got.Results[0].SerialNumber, "results are ordered by position")
	require.NotNil(t, got.Results[0].ComputerName)
	assert.Equal(t, "Bobs-Mac", *got.Results[0].ComputerName)
	assert.Equal(t, "S2", got.Results[1].SerialNumber)
	assert.Equal(t, models.MessageComputerNotFound, got.Results[1].ErrorMessage)

	results, err := db.ListResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.False(t, results[0].CompletedAt.IsZero())
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = db.FinishRun(context.Background(), "missing", models.RunStatusCompleted, 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		createRun(t, db, fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
	}

	runs, err := db.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)

	all, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateRun_DuplicateID(t *testing.T) {
	db := setupTestDB(t)
	createRun(t, db, "dup", time.Now())

	err := db.CreateRun(context.Background(), &models.Run{RunID: "dup", BaseURL: "x", Status: models.RunStatusRunning, StartedAt: time.Now()})
	assert.Error(t, err)
}

func TestDeleteRunsBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	createRun(t, db, "old", old)
	createRun(t, db, "recent", recent)
	require.NoError(t, db.SaveResult(ctx, &models.RunResult{RunID: "old", RecordID: "r", SerialNumber: "S", Status: models.StatusCompleted}))

	n, err := db.DeleteRunsBefore(ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].RunID)

	results, err := db.ListResults(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHistoryRecorderWithDatabase(t *testing.T) {
	db := setupTestDB(t)
	rec := batch.NewHistoryRecorder(db, nil)

	start := time.Now().UTC()
	rec.Notify(batch.Event{Type: batch.EventRunStarted, RunID: "run-x", BaseURL: "https://example.jamfcloud.com", Total: 1, Time: start})
	record := models.NewDeviceRecord("S1", "", "")
	record.Status = models.StatusCompleted
	rec.Notify(batch.Event{Type: batch.EventRecordTransition, RunID: "run-x", Record: record, ComputerID: "9", Time: start})
	rec.Notify(batch.Event{Type: batch.EventRunFinished, RunID: "run-x", Summary: &models.Summary{RunID: "run-x", Total: 1, Completed: 1, FinishedAt: start.Add(time.Second)}})

	run, err := db.GetRun(context.Background(), "run-x")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "9", run.Results[0].ComputerID)
	assert.Equal(t, record.ID.String(), run.Results[0].RecordID)
}

func TestNewDatabase_CreatesSQLiteDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "history.db")
	db, err := NewDatabase(config.DatabaseConfig{Type: DBTypeSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Close())
	assert.FileExists(t, dsn)
}
