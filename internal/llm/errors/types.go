// Package errors defines the failure taxonomy of the LLM completion
// boundary. Provider and rate limit errors carry enough structure for the
// retry layer to tell transient faults from permanent ones.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes LLM operation failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the request was rejected as malformed.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common LLM operation errors.
var (
	// ErrUnknownProvider indicates an unknown or unconfigured provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned no usable content.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrRateLimitExceeded indicates the local rate limit rejected a request.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMissingAPIKey indicates the provider API key is not set.
	ErrMissingAPIKey = errors.New("provider api key not set")
)

// ProviderError captures structured error responses from LLM providers.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // seconds
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the provider's Retry-After hint.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError is returned when a request is throttled before reaching
// the provider.
type RateLimitError struct {
	Provider   string  `json:"provider"`
	Limit      float64 `json:"limit"`
	RetryAfter int     `json:"retry_after"` // seconds
}

// Error implements error.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: limit %.2f/s, retry after %ds", e.Provider, e.Limit, e.RetryAfter)
}

// Unwrap lets errors.Is match ErrRateLimitExceeded.
func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// GetRetryAfter returns the suggested wait before retrying.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	return time.Duration(e.RetryAfter) * time.Second
}
