// Package activity provides shared infrastructure for Temporal activities:
// workflow context extraction, best-effort event emission, logging that is
// safe outside an activity context, and error classification helpers.
package activity

import (
	"context"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/ErikCohenDev/consensus-council/pkg/events"
)

// WorkflowContext identifies the workflow execution an activity runs under.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// BaseActivities is embedded by activity structs.
type BaseActivities struct {
	emitter *events.Emitter
}

// NewBaseActivities returns base infrastructure emitting to emitter. A nil
// emitter drops events.
func NewBaseActivities(emitter *events.Emitter) BaseActivities {
	return BaseActivities{emitter: emitter}
}

// GetWorkflowContext extracts execution metadata. Outside an activity
// context, as in unit tests, it returns placeholder IDs.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext

	func() {
		defer func() {
			if r := recover(); r != nil {
				wfCtx = WorkflowContext{
					WorkflowID: "local",
					RunID:      "local-" + uuid.NewString()[:8],
					ActivityID: "local",
					Attempt:    1,
				}
			}
		}()

		info := activity.GetInfo(ctx)
		wfCtx.WorkflowID = info.WorkflowExecution.ID
		wfCtx.RunID = info.WorkflowExecution.RunID
		wfCtx.ActivityID = info.ActivityID
		wfCtx.Attempt = info.Attempt
	}()

	return wfCtx
}

// EmitEventSafe delivers envelope best-effort, tagging it with the workflow
// ID. Failures are logged and never returned.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.emitter == nil {
		return
	}
	if envelope.WorkflowID == "" {
		envelope.WorkflowID = b.GetWorkflowContext(ctx).WorkflowID
	}
	b.emitter.Append(ctx, envelope)
	SafeLog(ctx, "event emitted: "+description,
		"event_type", envelope.Type,
		"idempotency_key", envelope.IdempotencyKey)
}

// RecordHeartbeat records a heartbeat; it is a no-op outside an activity.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info through the activity logger, and is a no-op outside
// an activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records activity progress, ignoring non-activity contexts.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}

// NonRetryable wraps cause so Temporal does not retry the activity.
func NonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// Retryable wraps cause as a transient application error.
func Retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}
