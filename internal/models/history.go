package models

import "time"

// Run is a persisted record of one bulk redeploy run
type Run struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID      string     `json:"run_id" gorm:"column:run_id;uniqueIndex;not null;size:36"`
	BaseURL    string     `json:"base_url" gorm:"column:base_url;not null"`
	ClientID   string     `json:"client_id" gorm:"column:client_id"`
	Status     RunStatus  `json:"status" gorm:"column:status;not null;size:20;index"`
	Total      int        `json:"total" gorm:"column:total;not null;default:0"`
	Completed  int        `json:"completed" gorm:"column:completed;not null;default:0"`
	Failed     int        `json:"failed" gorm:"column:failed;not null;default:0"`
	StartedAt  time.Time  `json:"started_at" gorm:"column:started_at;not null;index"`
	FinishedAt *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`

	Results []RunResult `json:"results,omitempty" gorm:"foreignKey:RunID;references:RunID"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "redeploy_runs"
}

// RunResult is the terminal outcome of one record within a run
type RunResult struct {
	ID           int64            `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID        string           `json:"run_id" gorm:"column:run_id;not null;size:36;index"`
	RecordID     string           `json:"record_id" gorm:"column:record_id;not null;size:36"`
	Position     int              `json:"position" gorm:"column:position;not null"`
	SerialNumber string           `json:"serial_number" gorm:"column:serial_number;not null;index"`
	ComputerName *string          `json:"computer_name,omitempty" gorm:"column:computer_name"`
	ComputerID   string           `json:"computer_id,omitempty" gorm:"column:computer_id"`
	Status       DeploymentStatus `json:"status" gorm:"column:status;not null;size:20"`
	ErrorMessage string           `json:"error_message,omitempty" gorm:"column:error_message"`
	CompletedAt  time.Time        `json:"completed_at" gorm:"column:completed_at;not null"`
}

// TableName specifies the table name for RunResult
func (RunResult) TableName() string {
	return "redeploy_run_results"
}
