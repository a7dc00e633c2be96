// Package models provides domain types and constants for the Jamf framework redeploy tool.
//
// This file consolidates all status constants used throughout the application.
// Import these constants instead of defining local ones.
package models

// DeploymentStatus is the per-record state of a redeploy run.
type DeploymentStatus string

// Deployment status constants. A record moves Pending -> InProgress -> {Completed, Failed}
// within a single run and never backwards.
const (
	StatusPending    DeploymentStatus = "pending"
	StatusInProgress DeploymentStatus = "in_progress"
	StatusCompleted  DeploymentStatus = "completed"
	StatusFailed     DeploymentStatus = "failed"
)

func (s DeploymentStatus) String() string { return string(s) }

// IsValid reports whether s is one of the known deployment statuses.
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s ends a record's run.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal run transition.
func (s DeploymentStatus) CanTransitionTo(next DeploymentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Label returns the short human label the status badge shows.
func (s DeploymentStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Per-record failure messages attached to failed records.
const (
	MessageComputerNotFound = "Computer not found"
	MessageRedeployFailed   = "Redeploy command failed"
)

// RunStatus is the persisted outcome of a whole run.
type RunStatus string

// Run status constants
const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusAuthFailed RunStatus = "auth_failed"
)

func (s RunStatus) String() string { return string(s) }

// IsValid reports whether s is one of the known run statuses.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusCancelled, RunStatusAuthFailed:
		return true
	}
	return false
}

// DefaultCredentialService is the secure-store service identifier credentials are filed under.
const DefaultCredentialService = "co.uk.mallion.Jamf-Framework-Redeploy"
