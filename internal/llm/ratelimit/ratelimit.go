// Package ratelimit throttles LLM requests with per-provider token buckets.
//
// The limiter waits for a token rather than rejecting immediately, so a
// burst of auditors is smoothed instead of failed. If the caller's context
// cannot accommodate the wait, the request fails with a RateLimitError that
// the retry layer treats as transient. This throttle is independent of the
// orchestrator's max_parallel bound.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// Config configures the token bucket.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or negative disables limiting.
	RequestsPerSecond float64
	// Burst is the bucket capacity. Values below one are raised to one.
	Burst int
}

// Limiter holds one token bucket per provider.
type Limiter struct {
	cfg    Config
	mu     sync.Mutex
	perKey map[string]*rate.Limiter
	logger *slog.Logger
}

// New returns a Limiter, or nil when cfg disables limiting.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:    cfg,
		perKey: make(map[string]*rate.Limiter),
		logger: slog.Default().With("component", "ratelimit"),
	}
}

func (l *Limiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.perKey[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
		l.perKey[key] = lim
	}
	return lim
}

// Wait blocks until a token for key is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	lim := l.limiter(key)

	reservation := lim.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		reservation.Cancel()
		return l.rejection(key, delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return l.rejection(key, delay)
		}
		return ctx.Err()
	}
}

func (l *Limiter) rejection(key string, delay time.Duration) error {
	retryAfter := int(math.Ceil(delay.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	l.logger.Debug("rate limit wait exceeds deadline", "provider", key, "delay", delay)
	return &llmerrors.RateLimitError{
		Provider:   key,
		Limit:      l.cfg.RequestsPerSecond,
		RetryAfter: retryAfter,
	}
}

// Middleware returns a transport middleware that waits on the provider's
// bucket before each request. A nil Limiter yields a pass-through.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		if l == nil {
			return next
		}
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := req.Provider
			if key == "" {
				key = "default"
			}
			if err := l.Wait(ctx, key); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}
