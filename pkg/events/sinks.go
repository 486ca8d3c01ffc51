package events

import (
	"context"
	"log/slog"
	"sync"
)

// SlogSink writes each event as one structured log record.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink logs events through logger at level. A nil logger uses the default.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "events"), level: level}
}

// Append implements Sink.
func (s *SlogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.LogAttrs(ctx, s.level, "event",
		slog.String("event_id", e.ID),
		slog.String("event_type", e.Type),
		slog.String("source", e.Source),
		slog.String("run_id", e.RunID),
		slog.String("idempotency_key", e.IdempotencyKey),
		slog.String("payload", string(e.Payload)),
	)
	return nil
}

// MemorySink keeps events in memory, deduplicated by idempotency key.
type MemorySink struct {
	mu     sync.Mutex
	events []Envelope
	seen   map[string]struct{}
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements Sink. A repeated non-empty idempotency key is a no-op.
func (m *MemorySink) Append(_ context.Context, e Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" {
		if _, dup := m.seen[e.IdempotencyKey]; dup {
			return nil
		}
		m.seen[e.IdempotencyKey] = struct{}{}
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns a snapshot of recorded events in arrival order.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns recorded events with the given type.
func (m *MemorySink) OfType(eventType string) []Envelope {
	var out []Envelope
	for _, e := range m.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
