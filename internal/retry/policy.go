// Package retry shields remote calls from transient failures without
// masking permanent ones. Errors are classified as retryable (timeouts,
// connection problems, 5xx, rate limits) or fatal (authentication,
// validation, 4xx); unclassified errors fail fast rather than loop on
// unknown conditions.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"cryptotrader/internal/ports"
)

// Config holds the retry budget for one call-site tier. Cheap operations
// should get fewer, shorter retries than expensive ones.
type Config struct {
	MaxAttempts int           // Total attempts including the first call
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap applied before jitter
	Logger      ports.Logger
}

// Policy applies jittered exponential backoff between retries of a
// classified-retryable error.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      ports.Logger

	// sleep is replaceable in tests to observe computed delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a retry policy for one call-site tier.
func New(cfg Config) (*Policy, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for retry policy")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MaxAttempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("invalid delay bounds: base=%s max=%s", cfg.BaseDelay, cfg.MaxDelay)
	}
	return &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		logger:      cfg.Logger,
		sleep:       sleepContext,
	}, nil
}

// Do invokes fn until it succeeds, the error classifies as fatal, the
// context is canceled, or the attempt budget runs out. On exhaustion the
// last error is re-raised wrapped; the caller decides whether that is
// fatal-for-this-tick or fatal-for-the-process.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoffDelay(attempt - 1)
			p.logger.Debug(ctx, "Backing off before retry", map[string]interface{}{
				"operation": op,
				"attempt":   attempt,
				"delay":     delay.String(),
			})
			if err := p.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s aborted during backoff: %w", op, err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			p.logger.Warn(ctx, "Non-retryable error, failing fast", map[string]interface{}{
				"operation": op,
				"error":     err.Error(),
			})
			return err
		}
		p.logger.Warn(ctx, "Retryable error", map[string]interface{}{
			"operation":   op,
			"attempt":     attempt + 1,
			"maxAttempts": p.maxAttempts,
			"error":       err.Error(),
		})
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.maxAttempts, lastErr)
}

// backoffDelay computes the delay for the k-th retry (0-indexed):
// min(base*2^k, max) plus symmetric jitter of up to 25% of that value,
// so simultaneous retriers do not synchronize into storms.
func (p *Policy) backoffDelay(k int) time.Duration {
	base := float64(p.baseDelay) * math.Pow(2, float64(k))
	if base > float64(p.maxDelay) {
		base = float64(p.maxDelay)
	}
	jitter := (rand.Float64()*2 - 1) * 0.25 * base
	return time.Duration(base + jitter)
}

var retryablePatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"temporarily unavailable",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
	"internal server error",
	"too many requests",
	"rate limit",
	"status 5",
}

var fatalPatterns = []string{
	"unauthorized",
	"forbidden",
	"authentication",
	"invalid",
	"bad request",
	"not found",
	"status 4",
}

// IsRetryable classifies an error. Sentinel errors take precedence over
// message patterns; anything unclassified is treated as fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ports.ErrContextCanceled),
		errors.Is(err, ports.ErrAuthenticationFailed),
		errors.Is(err, ports.ErrInvalidAPIKeys),
		errors.Is(err, ports.ErrInvalidRequest),
		errors.Is(err, ports.ErrPermissionDenied),
		errors.Is(err, ports.ErrNotFound):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrConnectionFailed),
		errors.Is(err, ports.ErrExchangeUnavailable):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pat := range fatalPatterns {
		if strings.Contains(msg, pat) {
			return false
		}
	}
	for _, pat := range retryablePatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
