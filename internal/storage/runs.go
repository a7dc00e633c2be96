package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a new run
func (d *Database) CreateRun(ctx context.Context, run *models.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// SaveResult stores the terminal outcome of one record
func (d *Database) SaveResult(ctx context.Context, result *models.RunResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to save run result: %w", err)
	}
	return nil
}

// FinishRun records the final status and counts of a run
func (d *Database) FinishRun(ctx context.Context, runID string, status models.RunStatus, completed, failed int, finishedAt time.Time) error {
	result := d.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":      status,
			"completed":   completed,
			"failed":      failed,
			"finished_at": finishedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all runs.
func (d *Database) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	var runs []*models.Run
	query := d.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its results in batch order
func (d *Database) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	var run models.Run
	err := d.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListResults returns the stored outcomes of a run in batch order
func (d *Database) ListResults(ctx context.Context, runID string) ([]*models.RunResult, error) {
	var results []*models.RunResult
	err := d.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list run results: %w", err)
	}
	return results, nil
}

// DeleteRunsBefore removes runs started before cutoff along with their results
func (d *Database) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&models.Run{}).Select("run_id").Where("started_at < ?", cutoff)
		if err := tx.Where("run_id IN (?)", old).Delete(&models.RunResult{}).Error; err != nil {
			return err
		}
		res := tx.Where("started_at < ?", cutoff).Delete(&models.Run{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return deleted, nil
}
