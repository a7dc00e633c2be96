package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

var (
	// ErrInvalidTransition is returned when a status change violates the record state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRecordNotFound is returned when a record ID is not part of the batch
	ErrRecordNotFound = errors.New("record not found in batch")
)

// Batch holds the ordered device records of a bulk redeploy and their progress.
// All methods are safe for concurrent use; readers always receive copies.
type Batch struct {
	mu         sync.RWMutex
	records    []*models.DeviceRecord
	index      map[uuid.UUID]int
	processed  int
	processing bool
}

// Snapshot is a point-in-time view of a batch
type Snapshot struct {
	Total      int                    `json:"total"`
	Processed  int                    `json:"processed"`
	Pending    int                    `json:"pending"`
	InProgress int                    `json:"in_progress"`
	Completed  int                    `json:"completed"`
	Failed     int                    `json:"failed"`
	Percent    int                    `json:"percent"`
	Processing bool                   `json:"processing"`
	Records    []*models.DeviceRecord `json:"records"`
}

// NewBatch creates a batch from records, keeping their order
func NewBatch(records []*models.DeviceRecord) *Batch {
	b := &Batch{}
	b.replace(records)
	return b
}

func (b *Batch) replace(records []*models.DeviceRecord) {
	b.records = make([]*models.DeviceRecord, 0, len(records))
	b.index = make(map[uuid.UUID]int, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		b.index[r.ID] = len(b.records)
		b.records = append(b.records, r.Clone())
	}
	b.processed = 0
}

// Replace swaps the batch contents for records
func (b *Batch) Replace(records []*models.DeviceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replace(records)
}

// Len returns the number of records
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Processed returns how many records reached a terminal status
func (b *Batch) Processed() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.processed
}

// Records returns copies of all records in order
func (b *Batch) Records() []*models.DeviceRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneRecords(b.records)
}

// Record returns a copy of the record with the given ID
func (b *Batch) Record(id uuid.UUID) (*models.DeviceRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return b.records[i].Clone(), true
}

// Transition moves a record to next. errMsg is stored only for StatusFailed.
// The processed count is incremented when the record becomes terminal.
func (b *Batch) Transition(id uuid.UUID, next models.DeploymentStatus, errMsg string) (*models.DeviceRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	r := b.records[i]
	if !r.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}

	r.Status = next
	r.ErrorMessage = ""
	if next == models.StatusFailed {
		r.ErrorMessage = errMsg
	}
	if next.IsTerminal() {
		b.processed++
	}
	return r.Clone(), nil
}

// Reset returns every record to pending, keeping identity and order
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records {
		r.Status = models.StatusPending
		r.ErrorMessage = ""
	}
	b.processed = 0
}

// Clear removes all records
func (b *Batch) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replace(nil)
}

// Processing reports whether a run is active on the batch
func (b *Batch) Processing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.processing
}

func (b *Batch) setProcessing(v bool) {
	b.mu.Lock()
	b.processing = v
	b.mu.Unlock()
}

// Snapshot returns the current counts and copies of all records
func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Snapshot{
		Total:      len(b.records),
		Processed:  b.processed,
		Processing: b.processing,
		Records:    cloneRecords(b.records),
	}
	for _, r := range b.records {
		switch r.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.Percent = s.Processed * 100 / s.Total
	}
	return s
}

func cloneRecords(records []*models.DeviceRecord) []*models.DeviceRecord {
	out := make([]*models.DeviceRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
