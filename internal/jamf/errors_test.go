package jamf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        []byte
		expectedErr error
		wantMessage string
	}{
		{"unauthorized", http.StatusUnauthorized, nil, ErrUnauthorized, "Unauthorized"},
		{"forbidden", http.StatusForbidden, []byte("missing privilege"), ErrForbidden, "missing privilege"},
		{"not found", http.StatusNotFound, nil, ErrNotFound, "Not Found"},
		{"bad request", http.StatusBadRequest, nil, ErrBadRequest, "Bad Request"},
		{"rate limited", http.StatusTooManyRequests, nil, ErrRateLimited, "Too Many Requests"},
		{"bad gateway", http.StatusBadGateway, nil, ErrServerError, "Bad Gateway"},
		{"unmapped", http.StatusConflict, nil, nil, "Conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newStatusError(http.MethodGet, "https://x.jamfcloud.com/api", tt.status, nil, tt.body)

			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
			if err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMessage)
			}
			if tt.expectedErr != nil && !errors.Is(err, tt.expectedErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.expectedErr)
			}
			if tt.expectedErr == nil && err.Err != nil {
				t.Errorf("Err = %v, want nil", err.Err)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found", Method: "GET", URL: "https://x/y", Err: ErrNotFound}
	want := "jamf api error: Not Found (status: 404, method: GET, url: https://x/y): jamf resource not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &APIError{StatusCode: 409, Message: "Conflict", Method: "POST", URL: "https://x/y"}
	if bare.Error() != "jamf api error: Conflict (status: 409, method: POST, url: https://x/y)" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"429", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"503", &APIError{StatusCode: http.StatusServiceUnavailable}, true},
		{"wrapped 500", fmt.Errorf("outer: %w", &APIError{StatusCode: http.StatusInternalServerError}), true},
		{"404", &APIError{StatusCode: http.StatusNotFound}, false},
		{"401", &APIError{StatusCode: http.StatusUnauthorized}, false},
		{"transport", &APIError{Err: errors.New("connection reset")}, true},
		{"cancelled", &APIError{Err: context.Canceled}, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("empty header = %v, want 0", got)
	}

	h.Set("Retry-After", "3")
	if got := parseRetryAfter(h); got != 3*time.Second {
		t.Errorf("seconds = %v, want 3s", got)
	}

	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	if got := parseRetryAfter(h); got < 58*time.Minute {
		t.Errorf("http date = %v, want about 1h", got)
	}

	h.Set("Retry-After", "soon")
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("garbage = %v, want 0", got)
	}
}

func TestIsNotFoundError(t *testing.T) {
	if !IsNotFoundError(newStatusError("GET", "u", http.StatusNotFound, nil, nil)) {
		t.Error("expected 404 to be a not found error")
	}
	if IsNotFoundError(newStatusError("GET", "u", http.StatusBadRequest, nil, nil)) {
		t.Error("400 is not a not found error")
	}
}
