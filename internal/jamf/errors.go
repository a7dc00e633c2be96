package jamf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized is returned when Jamf Pro rejects the credentials or token
	ErrUnauthorized = errors.New("jamf authentication failed")

	// ErrForbidden is returned when the API client lacks a required privilege
	ErrForbidden = errors.New("jamf access forbidden")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("jamf resource not found")

	// ErrBadRequest is returned when the request is malformed
	ErrBadRequest = errors.New("jamf bad request")

	// ErrRateLimited is returned when Jamf Pro throttles the client
	ErrRateLimited = errors.New("jamf rate limit exceeded")

	// ErrServerError is returned when Jamf Pro returns a server error
	ErrServerError = errors.New("jamf server error")
)

// APIError wraps Jamf Pro API errors with request context
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Method     string
	// RetryAfter is parsed from the Retry-After header of throttled responses
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jamf api error: %s (status: %d, method: %s, url: %s): %v",
			e.Message, e.StatusCode, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("jamf api error: %s (status: %d, method: %s, url: %s)",
		e.Message, e.StatusCode, e.Method, e.URL)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newStatusError builds an APIError for an unexpected HTTP status
func newStatusError(method, url string, statusCode int, header http.Header, body []byte) *APIError {
	msg := http.StatusText(statusCode)
	if len(body) > 0 {
		msg = truncate(string(body), 200)
	}
	return &APIError{
		StatusCode: statusCode,
		Message:    msg,
		URL:        url,
		Method:     method,
		RetryAfter: parseRetryAfter(header),
		Err:        mapErrorType(statusCode),
	}
}

// wrapTransportError converts a failed round trip into an APIError
func wrapTransportError(err error, method, url string) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &APIError{
		Message: "request failed",
		URL:     url,
		Method:  method,
		Err:     err,
	}
}

// mapErrorType maps HTTP status codes to specific error types
func mapErrorType(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrServerError
	default:
		return nil
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil && secs > 0 {
		return secs
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isRetryableStatus reports whether a response status is worth another attempt
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryableError checks if an error is retryable: throttling, server errors and
// transport failures other than cancellation.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			return apiErr.Err != nil
		}
		return isRetryableStatus(apiErr.StatusCode)
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
