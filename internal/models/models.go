package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceRecord is a single computer in a redeploy batch
type DeviceRecord struct {
	ID           uuid.UUID        `json:"id"`
	SerialNumber string           `json:"serial_number"`
	ComputerName *string          `json:"computer_name,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Status       DeploymentStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// NewDeviceRecord creates a pending record with a fresh identity.
// Blank name and notes are stored as absent.
func NewDeviceRecord(serial, name, notes string) *DeviceRecord {
	return &DeviceRecord{
		ID:           uuid.New(),
		SerialNumber: strings.TrimSpace(serial),
		ComputerName: optionalString(name),
		Notes:        optionalString(notes),
		Status:       StatusPending,
	}
}

// Clone returns a deep copy of the record
func (r *DeviceRecord) Clone() *DeviceRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ComputerName != nil {
		name := *r.ComputerName
		c.ComputerName = &name
	}
	if r.Notes != nil {
		notes := *r.Notes
		c.Notes = &notes
	}
	return &c
}

// DisplayName returns the computer name when known, otherwise the serial number
func (r *DeviceRecord) DisplayName() string {
	if r.ComputerName != nil {
		return *r.ComputerName
	}
	return r.SerialNumber
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Summary is the end-of-batch report for a run
type Summary struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Processed returns the number of records that reached a terminal state
func (s *Summary) Processed() int {
	return s.Completed + s.Failed
}

// Duration returns how long the run took
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

var (
	// ErrMissingCredentials is returned when the server URL, client ID or secret is blank
	ErrMissingCredentials = errors.New("jamf url, client id and client secret are required")

	// ErrInvalidBaseURL is returned when the server URL is not an http(s) URL with a host
	ErrInvalidBaseURL = errors.New("jamf url is not a valid http(s) url")
)

var baseURLPattern = regexp.MustCompile(`^((http|https)://)[-a-zA-Z0-9@:%._+~#?&/=]{2,256}\.[a-z]{2,6}\b([-a-zA-Z0-9@:%._+~#?&/=]*)$`)

// Credentials identifies a Jamf Pro server and the API client used against it
type Credentials struct {
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
}

// Normalize trims whitespace from every field and trailing slashes from the URL
func (c Credentials) Normalize() Credentials {
	return Credentials{
		BaseURL:      strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
	}
}

// Validate checks the credentials are complete and the URL is usable
func (c Credentials) Validate() error {
	n := c.Normalize()
	if n.BaseURL == "" || n.ClientID == "" || n.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if !ValidBaseURL(n.BaseURL) {
		return ErrInvalidBaseURL
	}
	return nil
}

// ValidBaseURL reports whether u looks like a Jamf Pro server URL
func ValidBaseURL(u string) bool {
	return baseURLPattern.MatchString(u)
}
