package batch

import (
	"sync"
	"time"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// EventType identifies a progress notification
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventRecordTransition EventType = "record_transition"
	EventAuthFailed       EventType = "auth_failed"
	EventRunFailed        EventType = "run_failed"
	EventLoadFailed       EventType = "load_failed"
	EventRunFinished      EventType = "run_finished"
)

// IsTerminal reports whether no further events follow for the attempt
func (t EventType) IsTerminal() bool {
	switch t {
	case EventAuthFailed, EventRunFailed, EventLoadFailed, EventRunFinished:
		return true
	}
	return false
}

// Event is a single progress notification.
// Record is a copy and may be mutated by the receiver.
type Event struct {
	Type       EventType            `json:"type"`
	RunID      string               `json:"run_id,omitempty"`
	BaseURL    string               `json:"base_url,omitempty"`
	ClientID   string               `json:"client_id,omitempty"`
	Record     *models.DeviceRecord `json:"record,omitempty"`
	Position   int                  `json:"position"`
	ComputerID string               `json:"computer_id,omitempty"`
	Processed  int                  `json:"processed"`
	Total      int                  `json:"total"`
	Summary    *models.Summary      `json:"summary,omitempty"`
	Err        error                `json:"-"`
	Time       time.Time            `json:"time"`
}

// Observer receives progress notifications synchronously with each state change
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Notify calls f(e)
func (f ObserverFunc) Notify(e Event) {
	f(e)
}

// MultiObserver fans each event out to every observer in order
type MultiObserver []Observer

// Notify forwards e to all non-nil observers
func (m MultiObserver) Notify(e Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(e)
		}
	}
}

// ChannelObserver publishes events on a buffered channel.
// Notify blocks while the buffer is full, so the consumer must keep reading until Close.
type ChannelObserver struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChannelObserver creates a channel observer with the given buffer size
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream
func (c *ChannelObserver) Events() <-chan Event {
	return c.ch
}

// Notify sends e unless the observer is closed
func (c *ChannelObserver) Notify(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.ch <- e
}

// Close ends the stream. Later notifications are discarded.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
