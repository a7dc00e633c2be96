package jamf

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func quickRetryer(attempts int) *Retryer {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRetryer(RetryConfig{
		MaxAttempts:     attempts,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		BackoffMultiple: 2,
	}, logger)
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	// A single attempt keeps requests unretried unless configured
	if config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
}

func TestNewRetryer_ClampsAttempts(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: -3}, slog.Default())
	if r.config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", r.config.MaxAttempts)
	}
}

func TestRetryer_DoSuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := quickRetryer(3).Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return &APIError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
}

func TestRetryer_DoNonRetryable(t *testing.T) {
	callCount := 0
	want := &APIError{StatusCode: http.StatusNotFound, Err: ErrNotFound}
	err := quickRetryer(5).Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		return want
	})

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Do() error = %v, want ErrNotFound", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryer_DoExhausted(t *testing.T) {
	callCount := 0
	err := quickRetryer(2).Do(context.Background(), "flaky", func(ctx context.Context) error {
		callCount++
		return &APIError{StatusCode: http.StatusServiceUnavailable, Err: ErrServerError}
	})

	if callCount != 2 {
		t.Errorf("callCount = %d, want 2", callCount)
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("Do() error = %v, want ErrServerError", err)
	}
	if !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Errorf("Do() error = %q, want attempt count", err.Error())
	}
}

func TestRetryer_DoSingleAttemptReturnsRawError(t *testing.T) {
	want := &APIError{StatusCode: http.StatusServiceUnavailable}
	err := quickRetryer(1).Do(context.Background(), "once", func(ctx context.Context) error {
		return want
	})
	if err != want {
		t.Errorf("Do() error = %v, want the original error", err)
	}
}

func TestRetryer_DoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetryer(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiple: 2},
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))

	err := r.Do(ctx, "slow", func(ctx context.Context) error {
		cancel()
		return &APIError{StatusCode: http.StatusTooManyRequests}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
