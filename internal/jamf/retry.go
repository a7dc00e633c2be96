package jamf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	BackoffMultiple float64       `mapstructure:"backoff_multiple"`
}

// DefaultRetryConfig returns the default retry configuration.
// A single attempt means requests are never retried unless configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     1,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// MaxRetryAfterWait caps how long a Retry-After header can stall a request
const MaxRetryAfterWait = 2 * time.Minute

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config RetryConfig
	logger *slog.Logger
}

// NewRetryer creates a new retryer
func NewRetryer(config RetryConfig, logger *slog.Logger) *Retryer {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiple < 1 {
		config.BackoffMultiple = 1
	}
	return &Retryer{
		config: config,
		logger: logger,
	}
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// Do executes a function with retry logic
func (r *Retryer) Do(ctx context.Context, operation string, fn RetryFunc) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt)
			}
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			r.logger.Debug("Non-retryable error encountered",
				"operation", operation,
				"attempt", attempt,
				"error", err)
			return err
		}

		// Don't retry on last attempt
		if attempt == r.config.MaxAttempts {
			break
		}

		wait := backoff
		if ra := retryAfter(err); ra > wait {
			wait = min(ra, MaxRetryAfterWait)
		}

		r.logger.Info("Retryable error, backing off",
			"operation", operation,
			"attempt", attempt,
			"backoff", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(wait):
			backoff = min(time.Duration(float64(backoff)*r.config.BackoffMultiple), r.config.MaxBackoff)
		}
	}

	if r.config.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, r.config.MaxAttempts, lastErr)
}

func retryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
