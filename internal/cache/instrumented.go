package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ErikCohenDev/consensus-council/internal/cache"

// Stats holds lookup counters for an Instrumented cache.
type Stats struct {
	// Hits is the total number of cache hits.
	Hits int64
	// Misses is the total number of misses, including corrupt entries.
	Misses int64
	// Errors is the total number of backend errors on Get or Set.
	Errors int64
	// Writes is the number of successful Set calls.
	Writes int64
	// HitRate is hits over hits plus misses.
	HitRate float64
}

// Instrumented wraps a Cache with atomic counters and OpenTelemetry metrics.
// Backend errors on Get are logged and downgraded to misses.
type Instrumented struct {
	next    Cache
	backend string
	logger  *slog.Logger

	lookups metric.Int64Counter

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
	writes atomic.Int64
}

// NewInstrumented wraps next. backend labels emitted metrics.
func NewInstrumented(next Cache, backend string) *Instrumented {
	c := &Instrumented{
		next:    next,
		backend: backend,
		logger:  slog.Default().With("component", "cache", "backend", backend),
	}
	counter, err := otel.Meter(meterName).Int64Counter("council.cache.lookups",
		metric.WithDescription("Auditor response cache lookups by result"))
	if err != nil {
		c.logger.Warn("cache lookup counter unavailable", "error", err)
	}
	c.lookups = counter
	return c
}

func (c *Instrumented) record(ctx context.Context, result string) {
	if c.lookups == nil {
		return
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", c.backend),
		attribute.String("result", result),
	))
}

// Get delegates to the wrapped cache and records the outcome.
func (c *Instrumented) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, ok, err := c.next.Get(ctx, key)
	switch {
	case err != nil:
		c.errors.Add(1)
		c.misses.Add(1)
		c.record(ctx, "error")
		c.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false, nil
	case ok:
		c.hits.Add(1)
		c.record(ctx, "hit")
		return value, true, nil
	default:
		c.misses.Add(1)
		c.record(ctx, "miss")
		return nil, false, nil
	}
}

// Set delegates to the wrapped cache. Errors are counted and returned.
func (c *Instrumented) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := c.next.Set(ctx, key, value); err != nil {
		c.errors.Add(1)
		return err
	}
	c.writes.Add(1)
	return nil
}

// Close closes the wrapped cache.
func (c *Instrumented) Close() error { return c.next.Close() }

// Stats returns a snapshot of the counters.
func (c *Instrumented) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		Writes:  c.writes.Load(),
		HitRate: hitRate,
	}
}
