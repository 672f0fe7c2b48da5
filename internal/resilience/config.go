package resilience

import (
	"time"
)

// FromRunnerConfig converts runner settings to a RetryConfig for model
// provider calls. Jitter is disabled so the backoff schedule stays
// deterministic: base, base·2, base·4, capped at the ceiling.
func FromRunnerConfig(maxRetries, backoffBaseMS, backoffCapSecs int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.JitterFraction = 0
	if maxRetries > 0 {
		cfg.MaxAttempts = maxRetries
	}
	if backoffBaseMS > 0 {
		cfg.InitialBackoff = time.Duration(backoffBaseMS) * time.Millisecond
	}
	if backoffCapSecs > 0 {
		cfg.MaxBackoff = time.Duration(backoffCapSecs) * time.Second
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
