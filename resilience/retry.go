// Package resilience provides the retry decorator that callers wrap around
// best-effort operations when they need stronger delivery guarantees.
package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/itsneelabh/agentcontracts/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// ShouldRetry decides whether an error is worth another attempt.
	// nil retries every error.
	ShouldRetry func(error) bool

	// Logger receives one debug line per retried attempt.
	Logger core.Logger
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		wait := delay
		if config.JitterEnabled && wait > 0 {
			// +/-10% spread so clients that failed together do not retry together
			wait += time.Duration((rand.Float64()*0.2 - 0.1) * float64(wait))
		}

		logger.Debug("Retrying after failure", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"wait_ms":      wait.Milliseconds(),
			"error":        err.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", maxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}
