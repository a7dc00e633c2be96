package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// historyTimeout bounds each write made by the history recorder
const historyTimeout = 5 * time.Second

// RunStore persists run history
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	SaveResult(ctx context.Context, result *models.RunResult) error
	FinishRun(ctx context.Context, runID string, status models.RunStatus, completed, failed int, finishedAt time.Time) error
}

// HistoryRecorder is an Observer that writes runs and terminal record outcomes to a RunStore.
// Store errors are logged and never interrupt the run.
type HistoryRecorder struct {
	store  RunStore
	logger *slog.Logger
}

// NewHistoryRecorder creates a history recorder
func NewHistoryRecorder(store RunStore, logger *slog.Logger) *HistoryRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRecorder{store: store, logger: logger}
}

// Notify implements Observer
func (h *HistoryRecorder) Notify(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	var err error
	switch e.Type {
	case EventRunStarted:
		err = h.store.CreateRun(ctx, &models.Run{
			RunID:     e.RunID,
			BaseURL:   e.BaseURL,
			ClientID:  e.ClientID,
			Status:    models.RunStatusRunning,
			Total:     e.Total,
			StartedAt: e.Time,
		})

	case EventRecordTransition:
		if e.Record == nil || !e.Record.Status.IsTerminal() {
			return
		}
		err = h.store.SaveResult(ctx, &models.RunResult{
			RunID:        e.RunID,
			RecordID:     e.Record.ID.String(),
			Position:     e.Position,
			SerialNumber: e.Record.SerialNumber,
			ComputerName: e.Record.ComputerName,
			ComputerID:   e.ComputerID,
			Status:       e.Record.Status,
			ErrorMessage: e.Record.ErrorMessage,
			CompletedAt:  e.Time,
		})

	case EventAuthFailed:
		err = h.store.FinishRun(ctx, e.RunID, models.RunStatusAuthFailed, 0, 0, e.Time)

	case EventRunFinished:
		if e.Summary == nil {
			return
		}
		status := models.RunStatusCompleted
		if e.Summary.Cancelled {
			status = models.RunStatusCancelled
		}
		err = h.store.FinishRun(ctx, e.RunID, status, e.Summary.Completed, e.Summary.Failed, e.Summary.FinishedAt)

	default:
		return
	}

	if err != nil {
		h.logger.Warn("Failed to record run history",
			"run_id", e.RunID,
			"event", e.Type,
			"error", err)
	}
}
