package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/credentials"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// defaultRunsLimit is used by list_runs when no limit is given
const defaultRunsLimit = 20

// RunReader reads stored run history
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	GetRun(ctx context.Context, runID string) (*models.Run, error)
}

// Server wraps the MCP server and exposes the redeploy tools
type Server struct {
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	manager   *batch.Manager
	history   RunReader
	creds     credentials.Source
	logger    *slog.Logger
	addr      string
	runCtx    context.Context
	mu        sync.RWMutex
	running   bool
}

// Config holds configuration for the MCP server
type Config struct {
	// Address to listen on for SSE (e.g., ":8081")
	Address string
	Manager *batch.Manager
	// History is optional; list_runs and get_run report an error without it
	History     RunReader
	Credentials credentials.Source
	Logger      *slog.Logger
	// RunContext bounds background runs started by run_bulk_redeploy
	RunContext context.Context
}

// NewServer creates a new MCP server with the redeploy tools registered
func NewServer(cfg Config) (*Server, error) {
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

	mcpServer := server.NewMCPServer(
		"Jamf Framework Redeploy",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(`You can redeploy the Jamf management framework to managed Macs.

Typical flow:
- load_devices with CSV text (one serial number per line, optional header, optional name and notes columns)
- run_bulk_redeploy to start, then get_batch_status to follow progress
- redeploy_computer for a single serial number
- list_runs and get_run to review earlier runs`),
	)

	s := &Server{
		mcpServer: mcpServer,
		manager:   cfg.Manager,
		history:   cfg.History,
		creds:     cfg.Credentials,
		logger:    cfg.Logger,
		addr:      cfg.Address,
		runCtx:    runCtx,
	}

	s.registerTools()

	return s, nil
}

// Start serves MCP over SSE on the configured address. It blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already running")
	}
	s.running = true
	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
	)
	sse := s.sseServer
	s.mu.Unlock()

	s.logger.Info("Starting MCP server", "address", s.addr)

	if err := sse.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// ServeStdio serves MCP over the given reader and writer until ctx is done
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("Serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP stdio error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the SSE server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Stopping MCP server")
	s.running = false

	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MCP server: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the SSE server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server's listening address
func (s *Server) Address() string {
	return s.addr
}

// registerTools registers the redeploy tools with the MCP server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("load_devices",
			mcp.WithDescription("Load computers into the working batch from CSV text or a CSV file path. Replaces the current batch. Lines without a serial number are skipped."),
			mcp.WithString("csv",
				mcp.Description("CSV content: serial number, optional computer name, optional notes"),
			),
			mcp.WithString("path",
				mcp.Description("Path to a CSV file readable by the server (alternative to csv)"),
			),
		),
		s.handleLoadDevices,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_batch_status",
			mcp.WithDescription("Get progress of the working batch: counts per status, percent complete, whether a run is active and the outcome of the last run."),
			mcp.WithBoolean("include_records",
				mcp.Description("Include every record with its status and error message"),
			),
		),
		s.handleGetBatchStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("run_bulk_redeploy",
			mcp.WithDescription("Redeploy the Jamf management framework to every computer in the working batch, one at a time. Starts in the background unless wait is true."),
			mcp.WithBoolean("wait",
				mcp.Description("Block until the run finishes and return its summary"),
			),
			mcp.WithString("base_url",
				mcp.Description("Jamf Pro URL; defaults to the configured server"),
			),
			mcp.WithString("client_id",
				mcp.Description("API client ID; the secret is read from configuration or the credential store"),
			),
		),
		s.handleRunBulkRedeploy,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("cancel_bulk_redeploy",
			mcp.WithDescription("Stop the active bulk redeploy after the current computer."),
		),
		s.handleCancelBulkRedeploy,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reset_batch",
			mcp.WithDescription("Return every computer in the working batch to pending so it can be run again."),
		),
		s.handleResetBatch,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("clear_batch",
			mcp.WithDescription("Remove every computer from the working batch."),
		),
		s.handleClearBatch,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("redeploy_computer",
			mcp.WithDescription("Redeploy the Jamf management framework to a single computer by serial number."),
			mcp.WithString("serial_number",
				mcp.Required(),
				mcp.Description("Serial number of the computer"),
			),
			mcp.WithString("base_url",
				mcp.Description("Jamf Pro URL; defaults to the configured server"),
			),
			mcp.WithString("client_id",
				mcp.Description("API client ID; the secret is read from configuration or the credential store"),
			),
		),
		s.handleRedeployComputer,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List recent bulk redeploy runs, newest first."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs to return (default 20, max 100)"),
			),
		),
		s.handleListRuns,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Get one bulk redeploy run with the outcome of every computer."),
			mcp.WithString("run_id",
				mcp.Required(),
				mcp.Description("Run ID as returned by list_runs or run_bulk_redeploy"),
			),
		),
		s.handleGetRun,
	)

	s.logger.Debug("Registered MCP tools", "count", 9)
}
