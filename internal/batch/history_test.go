package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

type memoryRunStore struct {
	mu      sync.Mutex
	runs    map[string]*models.Run
	results []*models.RunResult
	err     error
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: map[string]*models.Run{}}
}

func (s *memoryRunStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *memoryRunStore) SaveResult(_ context.Context, result *models.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

func (s *memoryRunStore) FinishRun(_ context.Context, runID string, status models.RunStatus, completed, failed int, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.Completed = completed
	run.Failed = failed
	run.FinishedAt = &finishedAt
	return nil
}

func TestHistoryRecorder_RecordsRun(t *testing.T) {
	api := newFakeAPI()
	api.computers["S1"] = "42"
	store := newMemoryRunStore()
	o := newTestOrchestrator(t, api, NewHistoryRecorder(store, testLogger()))

	summary, err := o.Run(context.Background(), NewBatch(records("S1", "S2")), testCredentials())
	require.NoError(t, err)

	run, ok := store.runs[summary.RunID]
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "https://example.jamfcloud.com", run.BaseURL)
	assert.Equal(t, "client", run.ClientID)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Completed)
	assert.Equal(t, 1, run.Failed)
	require.NotNil(t, run.FinishedAt)

	require.Len(t, store.results, 2, "only terminal transitions are stored")
	assert.Equal(t, "S1", store.results[0].SerialNumber)
	assert.Equal(t, "42", store.results[0].ComputerID)
	assert.Equal(t, models.StatusCompleted, store.results[0].Status)
	assert.Equal(t, 0, store.results[0].Position)
	assert.Equal(t, "S2", store.results[1].SerialNumber)
	assert.Equal(t, models.MessageComputerNotFound, store.results[1].ErrorMessage)
	assert.Equal(t, 1, store.results[1].Position)
}

func TestHistoryRecorder_AuthFailure(t *testing.T) {
	api := newFakeAPI()
	api.authErr = errors.New("denied")
	store := newMemoryRunStore()
	o := newTestOrchestrator(t, api, NewHistoryRecorder(store, testLogger()))

	_, err := o.Run(context.Background(), NewBatch(records("S1")), testCredentials())
	require.ErrorIs(t, err, ErrAuthentication)

	require.Len(t, store.runs, 1)
	for _, run := range store.runs {
		assert.Equal(t, models.RunStatusAuthFailed, run.Status)
	}
	assert.Empty(t, store.results)
}

func TestHistoryRecorder_StoreErrorsDoNotStopRun(t *testing.T) {
	api := newFakeAPI()
	api.computers["S1"] = "1"
	store := newMemoryRunStore()
	store.err = errors.New("disk full")
	o := newTestOrchestrator(t, api, NewHistoryRecorder(store, testLogger()))

	summary, err := o.Run(context.Background(), NewBatch(records("S1")), testCredentials())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
}
