package errors_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limited provider", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeRateLimit}, true},
		{"provider 5xx", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeProvider}, true},
		{"auth", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeAuth}, false},
		{"wrapped quota", fmt.Errorf("x: %w", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeQuota}), false},
		{"local throttle", &llmerrors.RateLimitError{Provider: "local"}, true},
		{"unknown provider", fmt.Errorf("pick: %w", llmerrors.ErrUnknownProvider), false},
		{"missing key", llmerrors.ErrMissingAPIKey, false},
		{"opaque", fmt.Errorf("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llmerrors.IsRetryable(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, llmerrors.RetryAfter(&llmerrors.ProviderError{RetryAfter: 3}))
	assert.Equal(t, 2*time.Second, llmerrors.RetryAfter(fmt.Errorf("w: %w", &llmerrors.RateLimitError{RetryAfter: 2})))
	assert.Zero(t, llmerrors.RetryAfter(fmt.Errorf("plain")))
}

func TestRateLimitErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &llmerrors.RateLimitError{Provider: "local", Limit: 2, RetryAfter: 1})
	assert.ErrorIs(t, err, llmerrors.ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "local")
}
