// Package mcp provides a Model Context Protocol server for the redeploy tool.
// It exposes the working batch, single redeploys and run history to MCP clients.
package mcp

import (
	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// LoadDevicesOutput is the output of load_devices
type LoadDevicesOutput struct {
	Loaded    int    `json:"loaded"`
	Skipped   int    `json:"skipped"`
	HasHeader bool   `json:"has_header"`
	Message   string `json:"message"`
}

// BatchStatusOutput is the output of get_batch_status and the batch mutating tools
type BatchStatusOutput struct {
	Total       int                    `json:"total"`
	Processed   int                    `json:"processed"`
	Pending     int                    `json:"pending"`
	InProgress  int                    `json:"in_progress"`
	Completed   int                    `json:"completed"`
	Failed      int                    `json:"failed"`
	Percent     int                    `json:"percent"`
	Running     bool                   `json:"running"`
	LastOutcome *batch.RunOutcome      `json:"last_outcome,omitempty"`
	Records     []*models.DeviceRecord `json:"records,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// RunBulkRedeployOutput is the output of run_bulk_redeploy
type RunBulkRedeployOutput struct {
	Started bool            `json:"started"`
	Total   int             `json:"total"`
	Summary *models.Summary `json:"summary,omitempty"`
	Message string          `json:"message"`
}

// RedeployComputerOutput is the output of redeploy_computer
type RedeployComputerOutput struct {
	SerialNumber string `json:"serial_number"`
	ComputerID   string `json:"computer_id"`
	StatusCode   int    `json:"status_code"`
	Message      string `json:"message"`
}

// ListRunsOutput is the output of list_runs
type ListRunsOutput struct {
	Runs       []*models.Run `json:"runs"`
	TotalCount int           `json:"total_count"`
	Message    string        `json:"message"`
}
