// Package events provides best-effort event emission for audit and pipeline
// progress. Events are for observability only; a sink failure never changes
// the outcome of the operation that emitted it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope.
const SchemaVersion = "1.0.0"

// Envelope wraps an event payload with routing and correlation metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event, e.g. "audit.stage_completed".
	Type string `json:"type"`

	// Source names the emitting component.
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across retries of the same logical event.
	IdempotencyKey string `json:"idempotency_key"`

	// RunID correlates events of one pipeline run.
	RunID string `json:"run_id,omitempty"`

	// WorkflowID is set when the event was emitted under Temporal.
	WorkflowID string `json:"workflow_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(eventType, source, runID, idempotencyKey string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		RunID:          runID,
		Payload:        raw,
	}, nil
}

// Sink receives events.
//
// Append should return quickly. Callers log and otherwise ignore its error.
type Sink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Append implements Sink.
func (NoOpSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpSink returns a sink that drops events.
func NewNoOpSink() Sink { return NoOpSink{} }
