// Package retry provides a bounded retry helper with exponential backoff for
// flaky external service calls.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jkivela/packwatch/internal/errors"
)

const (
	// DefaultMaxAttempts bounds how many times an operation is tried.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is the backoff delay before the second attempt.
	// The delay doubles after every failed attempt.
	DefaultBaseDelay = time.Second
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
	// Label identifies the operation in log lines.
	Label string
}

// DefaultConfig returns the retry settings used for reply-history fetches.
func DefaultConfig(label string) Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Label:       label,
	}
}

// Do invokes op until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. Backoff doubles after each failure starting from BaseDelay.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Category(errors.CategoryCancellation).
				Context("operation", cfg.Label).
				Build()
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("operation failed, retrying",
				"operation", cfg.Label,
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"delay", delay,
				"error", lastErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Category(errors.CategoryCancellation).
				Context("operation", cfg.Label).
				Build()
		}
		delay *= 2
	}

	return errors.New(lastErr).
		Category(errors.CategoryRetry).
		Context("operation", cfg.Label).
		Context("attempts", cfg.MaxAttempts).
		Build()
}
