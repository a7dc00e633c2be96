package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/jamf-redeploy/internal/csvimport"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

func newTestManager(t *testing.T, api DeviceAPI, obs Observer) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Orchestrator: newTestOrchestrator(t, api, obs),
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(ManagerConfig{Logger: testLogger()})
	assert.EqualError(t, err, "orchestrator is required")

	_, err = NewManager(ManagerConfig{Orchestrator: newTestOrchestrator(t, newFakeAPI(), nil)})
	assert.EqualError(t, err, "logger is required")
}

func TestManager_LoadAndRun(t *testing.T) {
	api := newFakeAPI()
	api.computers["C02ABC123"] = "7"
	m := newTestManager(t, api, nil)

	res, err := m.Load("Serial Number,Computer Name\nC02ABC123,Bobs-Mac\n,Empty\nC02XYZ789")
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.True(t, res.HasHeader)

	summary, err := m.Run(context.Background(), testCredentials())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	snap := m.Snapshot()
	assert.Equal(t, 100, snap.Percent)
	assert.False(t, snap.Processing)

	out := m.LastOutcome()
	require.NotNil(t, out)
	assert.Equal(t, summary.RunID, out.Summary.RunID)
	assert.Empty(t, out.Error)
}

func TestManager_LoadErrorKeepsBatch(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, newFakeAPI(), rec)

	_, err := m.Load("AAA111\nBBB222")
	require.NoError(t, err)

	_, err = m.Load("Serial Number\n   \n")
	assert.ErrorIs(t, err, csvimport.ErrNoValidRecords)
	assert.Equal(t, 2, m.Snapshot().Total)

	failed := rec.OfType(EventLoadFailed)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, csvimport.ErrNoValidRecords)
	assert.True(t, failed[0].Type.IsTerminal())
}

func TestManager_LoadFile(t *testing.T) {
	m := newTestManager(t, newFakeAPI(), nil)
	path := filepath.Join(t.TempDir(), "devices.csv")
	require.NoError(t, os.WriteFile(path, []byte("AAA111,Mac\n"), 0600))

	res, err := m.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	_, err = m.LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_RejectsChangesWhileRunning(t *testing.T) {
	api := newFakeAPI()
	release := make(chan struct{})
	entered := make(chan struct{})
	api.onResolve = func(string) {
		close(entered)
		<-release
	}
	m := newTestManager(t, api, nil)
	_, err := m.Load("AAA111")
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background(), testCredentials()))
	<-entered

	assert.True(t, m.Running())
	assert.ErrorIs(t, m.Start(context.Background(), testCredentials()), ErrRunInProgress)
	_, err = m.Run(context.Background(), testCredentials())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = m.Load("BBB222")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, m.Reset(), ErrRunInProgress)
	assert.ErrorIs(t, m.Clear(), ErrRunInProgress)
	assert.True(t, m.Snapshot().Processing)

	close(release)
	require.Eventually(t, func() bool { return !m.Running() }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Reset())
	assert.Equal(t, models.StatusPending, m.Snapshot().Records[0].Status)
	require.NoError(t, m.Clear())
	assert.Nil(t, m.LastOutcome())
	assert.Equal(t, 0, m.Snapshot().Total)
}

func TestManager_Cancel(t *testing.T) {
	api := newFakeAPI()
	api.computers["AAA111"] = "1"
	m := newTestManager(t, api, nil)
	api.onResolve = func(serial string) {
		if serial == "AAA111" {
			assert.True(t, m.Cancel())
		}
	}
	_, err := m.Load("AAA111\nBBB222")
	require.NoError(t, err)

	summary, err := m.Run(context.Background(), testCredentials())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)
	assert.False(t, m.Cancel(), "nothing to cancel once the run ended")

	out := m.LastOutcome()
	require.NotNil(t, out)
	assert.Contains(t, out.Error, "cancelled")
}
