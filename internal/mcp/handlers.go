package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/csvimport"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
	"github.com/kuhlman-labs/jamf-redeploy/internal/storage"
)

// handleLoadDevices implements the load_devices tool
func (s *Server) handleLoadDevices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("csv", "")
	path := req.GetString("path", "")

	var (
		res *csvimport.Result
		err error
	)
	switch {
	case content != "" && path != "":
		return mcp.NewToolResultError("Provide either csv or path, not both"), nil
	case content != "":
		res, err = s.manager.Load(content)
	case path != "":
		res, err = s.manager.LoadFile(path)
	default:
		return mcp.NewToolResultError("csv or path parameter is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load devices: %v", err)), nil
	}

	return s.jsonResult(LoadDevicesOutput{
		Loaded:    len(res.Records),
		Skipped:   res.Skipped,
		HasHeader: res.HasHeader,
		Message:   fmt.Sprintf("Loaded %d computers (%d lines skipped)", len(res.Records), res.Skipped),
	})
}

// handleGetBatchStatus implements the get_batch_status tool
func (s *Server) handleGetBatchStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.jsonResult(s.batchStatus(req.GetBool("include_records", false), ""))
}

func (s *Server) batchStatus(includeRecords bool, message string) BatchStatusOutput {
	snap := s.manager.Snapshot()
	out := BatchStatusOutput{
		Total:       snap.Total,
		Processed:   snap.Processed,
		Pending:     snap.Pending,
		InProgress:  snap.InProgress,
		Completed:   snap.Completed,
		Failed:      snap.Failed,
		Percent:     snap.Percent,
		Running:     s.manager.Running(),
		LastOutcome: s.manager.LastOutcome(),
		Message:     message,
	}
	if includeRecords {
		out.Records = snap.Records
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("%d of %d computers processed (%d completed, %d failed)",
			snap.Processed, snap.Total, snap.Completed, snap.Failed)
	}
	return out
}

// handleRunBulkRedeploy implements the run_bulk_redeploy tool
func (s *Server) handleRunBulkRedeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creds, err := s.creds.Credentials(models.Credentials{
		BaseURL:  req.GetString("base_url", ""),
		ClientID: req.GetString("client_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid Jamf credentials: %v", err)), nil
	}

	total := s.manager.Batch().Len()
	if total == 0 {
		return mcp.NewToolResultError("No computers loaded; call load_devices first"), nil
	}

	if req.GetBool("wait", false) {
		summary, err := s.manager.Run(ctx, creds)
		if summary == nil && err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Bulk redeploy failed: %v", err)), nil
		}
		msg := fmt.Sprintf("Bulk redeploy finished: %d completed, %d failed", summary.Completed, summary.Failed)
		if summary.Cancelled {
			msg = fmt.Sprintf("Bulk redeploy cancelled after %d of %d computers", summary.Processed(), summary.Total)
		}
		return s.jsonResult(RunBulkRedeployOutput{Started: true, Total: total, Summary: summary, Message: msg})
	}

	if err := s.manager.Start(s.runCtx, creds); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start bulk redeploy: %v", err)), nil
	}
	s.logger.Info("Bulk redeploy started over MCP", "total", total)

	return s.jsonResult(RunBulkRedeployOutput{
		Started: true,
		Total:   total,
		Message: fmt.Sprintf("Bulk redeploy of %d computers started; use get_batch_status to follow progress", total),
	})
}

// handleCancelBulkRedeploy implements the cancel_bulk_redeploy tool
func (s *Server) handleCancelBulkRedeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.manager.Cancel() {
		return mcp.NewToolResultError("No bulk redeploy is running"), nil
	}
	return mcp.NewToolResultText("Cancelling after the current computer"), nil
}

// handleResetBatch implements the reset_batch tool
func (s *Server) handleResetBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.manager.Reset(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reset batch: %v", err)), nil
	}
	return s.jsonResult(s.batchStatus(false, "All computers reset to pending"))
}

// handleClearBatch implements the clear_batch tool
func (s *Server) handleClearBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.manager.Clear(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to clear batch: %v", err)), nil
	}
	return s.jsonResult(s.batchStatus(false, "Batch cleared"))
}

// handleRedeployComputer implements the redeploy_computer tool
func (s *Server) handleRedeployComputer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serial, err := req.RequireString("serial_number")
	if err != nil {
		return mcp.NewToolResultError("serial_number parameter is required"), nil
	}

	creds, err := s.creds.Credentials(models.Credentials{
		BaseURL:  req.GetString("base_url", ""),
		ClientID: req.GetString("client_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid Jamf credentials: %v", err)), nil
	}

	result, err := s.manager.RedeployOne(ctx, creds, serial)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrComputerNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("Computer not found: %s", serial)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("Redeploy failed: %v", err)), nil
		}
	}

	return s.jsonResult(RedeployComputerOutput{
		SerialNumber: result.SerialNumber,
		ComputerID:   result.ComputerID,
		StatusCode:   result.StatusCode,
		Message:      fmt.Sprintf("Redeploy command sent to computer %s", result.ComputerID),
	})
}

// handleListRuns implements the list_runs tool
func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("Run history is disabled"), nil
	}

	limit := req.GetInt("limit", defaultRunsLimit)
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	limit = min(limit, 100)

	runs, err := s.history.ListRuns(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list runs: %v", err)), nil
	}

	return s.jsonResult(ListRunsOutput{
		Runs:       runs,
		TotalCount: len(runs),
		Message:    fmt.Sprintf("Found %d runs", len(runs)),
	})
}

// handleGetRun implements the get_run tool
func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("Run history is disabled"), nil
	}

	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	run, err := s.history.GetRun(ctx, runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Run not found: %s", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get run: %v", err)), nil
	}
	return s.jsonResult(run)
}

// jsonResult creates a JSON tool result
func (s *Server) jsonResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
