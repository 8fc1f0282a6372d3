package resilience

import "time"

// FromRetryConfig builds a RetryConfig from configuration values. Zero values
// keep the defaults; a negative jitter keeps the default jitter.
func FromRetryConfig(maxAttempts int, initialBackoff, maxBackoff time.Duration, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if maxBackoff > 0 {
		cfg.MaxBackoff = maxBackoff
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from configuration values.
// A zero threshold disables the breaker and returns nil.
func FromCircuitConfig(failureThreshold int, resetTimeout time.Duration) *CircuitBreakerConfig {
	if failureThreshold <= 0 {
		return nil
	}
	cfg := DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = failureThreshold
	if resetTimeout > 0 {
		cfg.ResetTimeout = resetTimeout
	}
	return &cfg
}
