package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	emitAttempts   = 2
	emitRetryDelay = 200 * time.Millisecond
)

// Emitter builds envelopes for one source and appends them best-effort.
type Emitter struct {
	sink   Sink
	source string
	logger *slog.Logger
}

// NewEmitter returns an emitter. A nil sink drops events.
func NewEmitter(sink Sink, source string, logger *slog.Logger) *Emitter {
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, source: source, logger: logger}
}

// Emit appends the event, retrying once after a short delay. Failures are
// logged and swallowed.
func (e *Emitter) Emit(ctx context.Context, eventType, runID, idempotencyKey string, payload any) {
	if e == nil {
		return
	}
	env, err := NewEnvelope(eventType, e.source, runID, idempotencyKey, payload)
	if err != nil {
		e.logger.Warn("event dropped", "event_type", eventType, "error", err)
		return
	}
	e.Append(ctx, env)
}

// Append delivers a prepared envelope with the same best-effort policy as Emit.
func (e *Emitter) Append(ctx context.Context, env Envelope) {
	if e == nil {
		return
	}
	var lastErr error
	for attempt := range emitAttempts {
		if attempt > 0 {
			select {
			case <-time.After(emitRetryDelay):
			case <-ctx.Done():
				e.logger.Warn("event emission cancelled", "event_type", env.Type)
				return
			}
		}
		if lastErr = e.sink.Append(ctx, env); lastErr == nil {
			return
		}
	}
	e.logger.Warn("event emission failed",
		"event_type", env.Type, "attempts", emitAttempts, "error", lastErr)
}
