package retry

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before the attempt following the given one.
// attempt is 1-based and refers to the attempt that just failed.
type Backoff func(attempt int) time.Duration

// Linear waits base*attempt.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 || base <= 0 {
			return 0
		}
		return base * time.Duration(attempt)
	}
}

// Exponential grows initial by multiplier per attempt, capped at maxInterval.
// With jitter, the delay is drawn uniformly from [0, computed].
func Exponential(initial time.Duration, multiplier float64, maxInterval time.Duration, jitter bool) Backoff {
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	return func(attempt int) time.Duration {
		if attempt <= 0 || initial <= 0 {
			return 0
		}
		backoff := initial
		for i := 1; i < attempt; i++ {
			backoff = time.Duration(float64(backoff) * multiplier)
			if maxInterval > 0 && backoff > maxInterval {
				backoff = maxInterval
				break
			}
		}
		if jitter {
			jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
			return time.Duration(jitterMs) * time.Millisecond
		}
		return backoff
	}
}
