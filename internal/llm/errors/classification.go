package errors

import (
	"context"
	"errors"
	"time"
)

// IsRetryable reports whether err is worth another attempt. Permanent
// provider failures such as authentication or quota errors are not;
// timeouts, throttling, network faults and unclassified errors are.
// Context cancellation of the caller is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	if errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	return true
}

// RetryAfter extracts a provider supplied retry hint, or zero.
func RetryAfter(err error) time.Duration {
	var hinted interface{ GetRetryAfter() time.Duration }
	if errors.As(err, &hinted) {
		return hinted.GetRetryAfter()
	}
	return 0
}
