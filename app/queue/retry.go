package queue

import (
	"time"

	"reelforge/app/config"
	"reelforge/app/taskerr"
)

// RetryPolicy decides how failed tasks are retried. MaxAttempts counts the
// first execution, so MaxAttempts=3 means up to two retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig builds the retry policy from configuration.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelay) * time.Second,
		MaxDelay:    time.Duration(cfg.MaxDelay) * time.Second,
	}
}

// Delay returns the backoff before the attempt following attempt k:
// base * 2^(k-1), bounded by MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a failure on attempt number attempts warrants
// another try.
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	return taskerr.Retryable(err) && attempts < p.MaxAttempts
}
