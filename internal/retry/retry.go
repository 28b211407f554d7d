// Package retry wraps GitHub and Slack calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RateLimitDelay is the minimum wait before retrying a rate-limited
	// call. GitHub expects clients that hit a secondary limit to pause
	// well beyond the normal backoff curve.
	RateLimitDelay time.Duration
	Jitter         bool
}

// DefaultConfig returns defaults tuned for paginated GitHub listing.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: 30 * time.Second,
		Jitter:         true,
	}
}

// Do executes fn with exponential backoff. Only retries if the error is retryable.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if cfg.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		if errors.Is(lastErr, perrors.ErrRateLimit) && delay < cfg.RateLimitDelay {
			delay = cfg.RateLimitDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
