package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls retry behavior. The delay before retry number n
// (n starts at 1) is Unit * (2^n + jitter) with jitter in [0,1), capped at
// MaxBackoff. With the default 1s unit that is 2-3s, 4-5s, 8-9s, ...
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 5.
	MaxAttempts int

	// Unit scales the exponential schedule. Default: 1s.
	Unit time.Duration

	// MaxBackoff caps a single sleep. Default: 60s.
	MaxBackoff time.Duration

	// Jitter returns a value in [0,1). Default: rand.Float64.
	Jitter func() float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the attempt that just
	// failed, its error and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the retry schedule used for provider fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Unit:        time.Second,
		MaxBackoff:  60 * time.Second,
	}
}

// Ceiling returns the longest total time DoVal can spend sleeping between
// attempts, excluding the attempts themselves.
func (c RetryConfig) Ceiling() time.Duration {
	c = applyDefaults(c)
	var total time.Duration
	for attempt := 1; attempt < c.MaxAttempts; attempt++ {
		d := time.Duration(float64(c.Unit) * (math.Pow(2, float64(attempt)) + 1))
		if d > c.MaxBackoff {
			d = c.MaxBackoff
		}
		total += d
	}
	return total
}

// Backoff returns the sleep before the retry that follows the given failed
// attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = applyDefaults(c)
	if attempt < 1 {
		attempt = 1
	}
	j := c.Jitter()
	if j < 0 || j >= 1 {
		j = 0
	}
	delay := float64(c.Unit) * (math.Pow(2, float64(attempt)) + j)
	if delay > float64(c.MaxBackoff) {
		delay = float64(c.MaxBackoff)
	}
	return time.Duration(delay)
}

// DoVal calls fn until it succeeds, returns an error ShouldRetry (default
// IsTransient) rejects, ctx ends, or MaxAttempts calls have been made. It
// sleeps Backoff(attempt) between calls and never after the last one.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		if !shouldRetry(lastErr) {
			return zero, lastErr
		}

		// Don't sleep after the last attempt.
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Unit <= 0 {
		cfg.Unit = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.Jitter == nil {
		cfg.Jitter = rand.Float64
	}
	return cfg
}
