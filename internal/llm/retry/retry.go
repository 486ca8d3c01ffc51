// Package retry runs a fallible operation under an explicit attempt and
// backoff policy. Each attempt's outcome is an ordinary error return; the
// combinator decides whether to wait and try again, and reports exhaustion
// as a typed error that keeps the last attempt's failure reachable.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted matches errors returned after every attempt failed.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrInvalidPolicy is returned for a policy with no attempts.
	ErrInvalidPolicy = errors.New("retry policy requires at least one attempt")
)

// Policy configures Do.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff computes the wait after a failed attempt. Nil means no wait.
	Backoff Backoff

	// Retryable decides whether an error deserves another attempt.
	// Nil treats every error as retryable.
	Retryable func(error) bool

	// RetryAfter extracts a server supplied minimum wait from an error.
	// When it exceeds the backoff, it is used instead, capped at MaxDelay.
	RetryAfter func(error) time.Duration

	// MaxDelay caps any single wait. Zero means uncapped.
	MaxDelay time.Duration

	// OnRetry observes each scheduled retry, typically for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Error reports a failed retry loop.
type Error struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last attempt's error.
	Err error
	// Permanent is set when the loop stopped on a non-retryable error or
	// on cancellation rather than by running out of attempts.
	Permanent bool
}

func (e *Error) Error() string {
	if e.Permanent {
		return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrExhausted, e.Attempts, e.Err)
}

// Unwrap exposes the last attempt error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrExhausted for loops that ran out of attempts.
func (e *Error) Is(target error) bool { return target == ErrExhausted && !e.Permanent }

// Attempts returns the attempt count recorded in err, or zero.
func Attempts(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}

// Do calls op until it succeeds, returns a non-retryable error, ctx ends,
// or MaxAttempts is reached. op receives the 1-based attempt number.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, ErrInvalidPolicy
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, &Error{Attempts: attempt - 1, Err: lastErr, Permanent: true}
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, &Error{Attempts: attempt, Err: err, Permanent: true}
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, &Error{Attempts: attempt, Err: errors.Join(err, ctx.Err()), Permanent: true}
		}
	}

	return zero, &Error{Attempts: p.MaxAttempts, Err: lastErr}
}

func (p Policy) delay(attempt int, err error) time.Duration {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff(attempt)
	}
	if p.RetryAfter != nil {
		if hint := p.RetryAfter(err); hint > d {
			d = hint
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
