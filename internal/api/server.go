// Package api exposes the working batch and run history over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kuhlman-labs/jamf-redeploy/internal/api/middleware"
	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/credentials"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// RunReader reads stored run history
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	GetRun(ctx context.Context, runID string) (*models.Run, error)
}

// Server serves the HTTP API
type Server struct {
	manager *batch.Manager
	history RunReader
	creds   credentials.Source
	logger  *slog.Logger
	// runCtx outlives individual requests; background runs are bound to it
	runCtx context.Context
}

// ServerConfig holds the dependencies of the API server
type ServerConfig struct {
	Manager *batch.Manager
	// History is optional; the runs endpoints answer 503 without it
	History RunReader
	// Credentials supplies the Jamf credentials for runs and single redeploys
	Credentials credentials.Source
	Logger      *slog.Logger
	// RunContext bounds background runs started over HTTP. Defaults to context.Background.
	RunContext context.Context
}

// NewServer creates an API server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	runCtx := cfg.RunContext
	if runCtx == nil {
		runCtx = context.Background()
	}

	return &Server{
		manager: cfg.Manager,
		history: cfg.History,
		creds:   cfg.Credentials,
		logger:  cfg.Logger,
		runCtx:  runCtx,
	}, nil
}

// Router returns the HTTP handler with all routes and middleware applied
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Working batch
	mux.HandleFunc("GET /api/v1/batch", s.handleGetBatch)
	mux.HandleFunc("POST /api/v1/batch", s.handleLoadBatch)
	mux.HandleFunc("DELETE /api/v1/batch", s.handleClearBatch)
	mux.HandleFunc("POST /api/v1/batch/reset", s.handleResetBatch)
	mux.HandleFunc("POST /api/v1/batch/run", s.handleRunBatch)
	mux.HandleFunc("POST /api/v1/batch/cancel", s.handleCancelBatch)

	// Single computer
	mux.HandleFunc("POST /api/v1/redeploy", s.handleRedeployOne)

	// History
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)

	return middleware.CORS(middleware.Logging(s.logger)(middleware.Recovery(s.logger)(mux)))
}
