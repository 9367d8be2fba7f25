package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Non-positive
// values keep the defaults.
func FromRetryConfig(maxAttempts, unitMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if unitMs > 0 {
		cfg.Unit = time.Duration(unitMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig converts config values to a BreakerConfig. Non-positive
// values keep the defaults.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.Cooldown = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
