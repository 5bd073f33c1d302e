// Package retry restarts a failing operation with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config contains configuration for exponential backoff retries
type Config struct {
	MaxRetries    int           // Maximum number of retry attempts (0 disables retries)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns the default backoff with retries disabled.
// Callers set MaxRetries to opt in.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    0,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks the current state of retry attempts
type State struct {
	CurrentRetries int
	Retries        *uint32 // Atomic counter of retries actually started, may be nil
}

// Func is one attempt. A nil error ends the loop.
type Func func(ctx context.Context) error

// Predicate reports whether a failed attempt may be retried.
type Predicate func(err error) bool

// Run executes fn, retrying with exponential backoff while shouldRetry
// accepts the error and the retry budget is not exhausted.
//
// Backoff schedule with the default delays:
//   - Retry 1: 1 second
//   - Retry 2: 2 seconds
//   - Retry 3: 4 seconds
//   - ...capped at MaxRetryDelay
//
// A nil shouldRetry retries every error. The last attempt's error is
// wrapped in the returned error when retries run out.
func Run(
	ctx context.Context,
	fn Func,
	cfg Config,
	state *State,
	shouldRetry Predicate,
) error {
	if state == nil {
		state = &State{}
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("retry: context cancelled, stopping")
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}

		if ctx.Err() != nil {
			return err
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if cfg.MaxRetries <= 0 {
			return err
		}

		state.CurrentRetries++
		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("retry: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}
		if state.Retries != nil {
			atomic.AddUint32(state.Retries, 1)
		}

		delay := calculateBackoff(state.CurrentRetries, cfg)

		slog.Warn("retry: attempt failed, retrying",
			"error", err,
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
			slog.Info("retry: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff calculates the exponential backoff delay for a given attempt
//
// Formula: delay = retryDelay * 2^(attempt-1)
// Cap: min(delay, maxRetryDelay)
func calculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shifts beyond 30 overflow long before any sane cap.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(shift))

	if cfg.MaxRetryDelay > 0 && (delay > cfg.MaxRetryDelay || delay < 0) {
		delay = cfg.MaxRetryDelay
	}

	return delay
}
