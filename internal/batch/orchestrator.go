package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

var (
	// ErrAuthentication is returned when no access token could be obtained
	ErrAuthentication = errors.New("could not authenticate with Jamf Pro")

	// ErrComputerNotFound is returned when a serial number does not resolve to a computer
	ErrComputerNotFound = errors.New("computer not found")

	// ErrRedeployFailed is returned when the redeploy command is not accepted
	ErrRedeployFailed = errors.New("redeploy command failed")

	// ErrEmptyBatch is returned when a run is requested with no records loaded
	ErrEmptyBatch = errors.New("no computers loaded")

	// ErrMissingSerial is returned when a single redeploy is requested without a serial number
	ErrMissingSerial = errors.New("serial number is required")
)

// invalidateTimeout bounds the best-effort token invalidation at the end of a run
const invalidateTimeout = 10 * time.Second

// DeviceAPI is the remote device-management service the orchestrator drives
type DeviceAPI interface {
	// Authenticate exchanges client credentials for a bearer token
	Authenticate(ctx context.Context, baseURL, clientID, clientSecret string) (string, error)

	// ResolveComputer looks up the internal computer ID for a serial number.
	// The HTTP status is returned alongside the ID.
	ResolveComputer(ctx context.Context, baseURL, token, serial string) (string, int, error)

	// RedeployFramework issues the redeploy command and returns the HTTP status
	RedeployFramework(ctx context.Context, baseURL, token, computerID string) (int, error)
}

// TokenInvalidator is implemented by a DeviceAPI that can revoke its token
type TokenInvalidator interface {
	InvalidateToken(ctx context.Context, baseURL, token string) error
}

// Orchestrator runs redeploy commands for a batch, one record at a time
type Orchestrator struct {
	api      DeviceAPI
	observer Observer
	pacer    *Pacer
	logger   *slog.Logger
}

// OrchestratorConfig holds configuration for the orchestrator
type OrchestratorConfig struct {
	API      DeviceAPI
	Observer Observer
	// Delay is the pause between consecutive records; zero disables it
	Delay  time.Duration
	Logger *slog.Logger
}

// SingleResult is the outcome of a single-computer redeploy
type SingleResult struct {
	SerialNumber string `json:"serial_number"`
	ComputerID   string `json:"computer_id"`
	StatusCode   int    `json:"status_code"`
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("device api is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("delay must not be negative: %s", cfg.Delay)
	}

	return &Orchestrator{
		api:      cfg.API,
		observer: cfg.Observer,
		pacer:    NewPacer(cfg.Delay),
		logger:   cfg.Logger,
	}, nil
}

func (o *Orchestrator) notify(e Event) {
	if o.observer == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.observer.Notify(e)
}

// Run authenticates once and redeploys every record of b in order.
// Records are reset to pending before authenticating. Per-record failures are
// stored on the record and do not stop the run; an authentication failure aborts
// it before any record is touched. When ctx is cancelled between records the
// returned summary is marked cancelled and the error wraps ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, b *Batch, creds models.Credentials) (*models.Summary, error) {
	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		o.notify(Event{Type: EventRunFailed, Total: b.Len(), Err: err})
		return nil, err
	}
	if b.Len() == 0 {
		o.notify(Event{Type: EventRunFailed, Err: ErrEmptyBatch})
		return nil, ErrEmptyBatch
	}

	b.Reset()
	b.setProcessing(true)
	defer b.setProcessing(false)

	summary := &models.Summary{
		RunID:     uuid.NewString(),
		Total:     b.Len(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With("run_id", summary.RunID)

	logger.Info("Starting bulk redeploy",
		"base_url", creds.BaseURL,
		"total", summary.Total,
		"delay", o.pacer.Delay())
	o.notify(Event{
		Type:     EventRunStarted,
		RunID:    summary.RunID,
		BaseURL:  creds.BaseURL,
		ClientID: creds.ClientID,
		Total:    summary.Total,
		Time:     summary.StartedAt,
	})

	token, err := o.authenticate(ctx, creds)
	if err != nil {
		summary.FinishedAt = time.Now()
		logger.Error("Authentication failed, aborting bulk redeploy", "error", err)
		o.notify(Event{
			Type:    EventAuthFailed,
			RunID:   summary.RunID,
			Total:   summary.Total,
			Summary: summary,
			Err:     err,
		})
		return nil, err
	}
	defer o.invalidate(ctx, logger, creds.BaseURL, token)

	var runErr error
	for i, rec := range b.Records() {
		if i > 0 {
			if err := o.pacer.Wait(ctx); err != nil {
				runErr = fmt.Errorf("bulk redeploy cancelled: %w", err)
				break
			}
		}

		final := o.processRecord(ctx, logger, b, summary.RunID, i, rec, creds.BaseURL, token)
		switch final {
		case models.StatusCompleted:
			summary.Completed++
		case models.StatusFailed:
			summary.Failed++
		}

		if err := ctx.Err(); err != nil && i < summary.Total-1 {
			runErr = fmt.Errorf("bulk redeploy cancelled: %w", err)
			break
		}
	}

	summary.Cancelled = runErr != nil
	summary.FinishedAt = time.Now()

	logger.Info("Bulk redeploy finished",
		"total", summary.Total,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration())
	o.notify(Event{
		Type:      EventRunFinished,
		RunID:     summary.RunID,
		Processed: b.Processed(),
		Total:     summary.Total,
		Summary:   summary,
		Err:       runErr,
		Time:      summary.FinishedAt,
	})

	return summary, runErr
}

func (o *Orchestrator) authenticate(ctx context.Context, creds models.Credentials) (string, error) {
	token, err := o.api.Authenticate(ctx, creds.BaseURL, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthentication)
	}
	return token, nil
}

func (o *Orchestrator) invalidate(ctx context.Context, logger *slog.Logger, baseURL, token string) {
	inv, ok := o.api.(TokenInvalidator)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := inv.InvalidateToken(ctx, baseURL, token); err != nil {
		logger.Warn("Failed to invalidate access token", "error", err)
	}
}

// processRecord drives one record to a terminal status and returns it
func (o *Orchestrator) processRecord(ctx context.Context, logger *slog.Logger, b *Batch, runID string, pos int, rec *models.DeviceRecord, baseURL, token string) models.DeploymentStatus {
	logger = logger.With("serial", rec.SerialNumber, "record_id", rec.ID)

	if !o.transition(logger, b, runID, pos, rec.ID, models.StatusInProgress, "", "") {
		return rec.Status
	}

	computerID, status, err := o.api.ResolveComputer(ctx, baseURL, token, rec.SerialNumber)
	if err != nil || computerID == "" || status != http.StatusOK {
		logger.Warn("Computer lookup failed", "status", status, "error", err)
		o.transition(logger, b, runID, pos, rec.ID, models.StatusFailed, models.MessageComputerNotFound, "")
		return models.StatusFailed
	}

	status, err = o.api.RedeployFramework(ctx, baseURL, token, computerID)
	if err != nil || status != http.StatusAccepted {
		logger.Warn("Redeploy command failed", "computer_id", computerID, "status", status, "error", err)
		o.transition(logger, b, runID, pos, rec.ID, models.StatusFailed, models.MessageRedeployFailed, computerID)
		return models.StatusFailed
	}

	logger.Info("Redeploy command sent", "computer_id", computerID)
	o.transition(logger, b, runID, pos, rec.ID, models.StatusCompleted, "", computerID)
	return models.StatusCompleted
}

func (o *Orchestrator) transition(logger *slog.Logger, b *Batch, runID string, pos int, id uuid.UUID, next models.DeploymentStatus, errMsg, computerID string) bool {
	updated, err := b.Transition(id, next, errMsg)
	if err != nil {
		logger.Error("Failed to update record status", "status", next, "error", err)
		return false
	}

	logger.Debug("Record status changed", "status", next)
	o.notify(Event{
		Type:       EventRecordTransition,
		RunID:      runID,
		Record:     updated,
		Position:   pos,
		ComputerID: computerID,
		Processed:  b.Processed(),
		Total:      b.Len(),
	})
	return true
}

// RedeployOne authenticates and redeploys the framework to a single computer.
// Errors wrap ErrAuthentication, ErrComputerNotFound or ErrRedeployFailed.
func (o *Orchestrator) RedeployOne(ctx context.Context, creds models.Credentials, serial string) (*SingleResult, error) {
	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, ErrMissingSerial
	}

	logger := o.logger.With("serial", serial)
	logger.Info("Starting single redeploy", "base_url", creds.BaseURL)

	token, err := o.authenticate(ctx, creds)
	if err != nil {
		logger.Error("Authentication failed", "error", err)
		return nil, err
	}
	defer o.invalidate(ctx, logger, creds.BaseURL, token)

	result := &SingleResult{SerialNumber: serial}

	computerID, status, err := o.api.ResolveComputer(ctx, creds.BaseURL, token, serial)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrComputerNotFound, serial, err)
	}
	if computerID == "" || status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s (status %d)", ErrComputerNotFound, serial, status)
	}
	result.ComputerID = computerID

	status, err = o.api.RedeployFramework(ctx, creds.BaseURL, token, computerID)
	result.StatusCode = status
	if err != nil {
		return result, fmt.Errorf("%w: computer %s: %w", ErrRedeployFailed, computerID, err)
	}
	if status != http.StatusAccepted {
		return result, fmt.Errorf("%w: computer %s (status %d)", ErrRedeployFailed, computerID, status)
	}

	logger.Info("Redeploy command sent", "computer_id", computerID)
	return result, nil
}
