package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/kuhlman-labs/jamf-redeploy/internal/csvimport"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// ErrRunInProgress is returned when the batch is changed or re-run during an active run
var ErrRunInProgress = errors.New("a bulk redeploy is already in progress")

// Manager owns the working batch and serialises loads and runs against it.
// It is the surface shared by the CLI, the HTTP API and the MCP tools.
type Manager struct {
	mu           sync.Mutex
	batch        *Batch
	orchestrator *Orchestrator
	logger       *slog.Logger

	running bool
	cancel  context.CancelFunc
	last    *RunOutcome
}

// ManagerConfig holds configuration for the manager
type ManagerConfig struct {
	Orchestrator *Orchestrator
	Logger       *slog.Logger
}

// RunOutcome records how the most recent run attempt ended
type RunOutcome struct {
	Summary *models.Summary `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewManager creates a manager with an empty batch
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Manager{
		batch:        NewBatch(nil),
		orchestrator: cfg.Orchestrator,
		logger:       cfg.Logger,
	}, nil
}

// Batch returns the working batch
func (m *Manager) Batch() *Batch {
	return m.batch
}

// Load parses CSV content and replaces the working batch.
// On error the current batch is left untouched.
func (m *Manager) Load(content string) (*csvimport.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrRunInProgress
	}

	res, err := csvimport.ParseWithStats(content)
	if err != nil {
		m.logger.Warn("Failed to load devices", "error", err)
		m.orchestrator.notify(Event{Type: EventLoadFailed, Err: err})
		return nil, err
	}

	m.batch.Replace(res.Records)
	m.logger.Info("Loaded devices",
		"count", len(res.Records),
		"skipped", res.Skipped,
		"has_header", res.HasHeader)
	return res, nil
}

// LoadFile reads a CSV file and replaces the working batch
func (m *Manager) LoadFile(path string) (*csvimport.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read CSV file: %w", err)
		m.logger.Warn("Failed to load devices", "path", path, "error", err)
		m.orchestrator.notify(Event{Type: EventLoadFailed, Err: err})
		return nil, err
	}
	return m.Load(string(data))
}

func (m *Manager) begin(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrRunInProgress
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (m *Manager) finish(summary *models.Summary, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
	m.last = &RunOutcome{Summary: summary}
	if err != nil {
		m.last.Error = err.Error()
	}
}

// Run executes the working batch and blocks until it finishes
func (m *Manager) Run(ctx context.Context, creds models.Credentials) (*models.Summary, error) {
	ctx, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := m.orchestrator.Run(ctx, m.batch, creds)
	m.finish(summary, err)
	return summary, err
}

// Start executes the working batch in the background.
// The outcome is available from LastOutcome once the run ends.
func (m *Manager) Start(ctx context.Context, creds models.Credentials) error {
	runCtx, err := m.begin(ctx)
	if err != nil {
		return err
	}

	go func() {
		summary, err := m.orchestrator.Run(runCtx, m.batch, creds)
		if err != nil {
			m.logger.Warn("Background bulk redeploy ended with error", "error", err)
		}
		m.finish(summary, err)
	}()
	return nil
}

// Cancel stops the active run after the current record. It reports whether a run was active.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.cancel == nil {
		return false
	}
	m.logger.Info("Cancelling bulk redeploy")
	m.cancel()
	return true
}

// Running reports whether a run is active
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Reset returns all records to pending
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRunInProgress
	}
	m.batch.Reset()
	return nil
}

// Clear empties the working batch
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRunInProgress
	}
	m.batch.Clear()
	m.last = nil
	return nil
}

// Snapshot returns the current batch state
func (m *Manager) Snapshot() Snapshot {
	return m.batch.Snapshot()
}

// LastOutcome returns the result of the most recent finished run, or nil
func (m *Manager) LastOutcome() *RunOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	out := *m.last
	return &out
}

// RedeployOne redeploys a single computer outside the working batch
func (m *Manager) RedeployOne(ctx context.Context, creds models.Credentials, serial string) (*SingleResult, error) {
	return m.orchestrator.RedeployOne(ctx, creds, serial)
}
