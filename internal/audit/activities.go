// Package audit exposes stage audits, alignment checks, revision proposals
// and run persistence as Temporal activities.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/orchestrator"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
	pkgactivity "github.com/ErikCohenDev/consensus-council/pkg/activity"
	"github.com/ErikCohenDev/consensus-council/pkg/events"
)

// Activity names as registered with a worker.
const (
	ActivityExecuteStageAudit = "ExecuteStageAudit"
	ActivityValidateAlignment = "ValidateAlignment"
	ActivityProposeRevisions  = "ProposeRevisions"
	ActivitySaveRun           = "SaveRun"
)

// ErrInvalidInput marks activity input that can never succeed.
var ErrInvalidInput = errors.New("invalid activity input")

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, summary *domain.PipelineSummary) error
}

// StageAuditInput is the input of ExecuteStageAudit.
type StageAuditInput struct {
	RunID     string `json:"run_id"`
	Iteration int    `json:"iteration"`
	Stage     string `json:"stage"`
	Document  string `json:"document"`
}

// AlignmentInput is the input of ValidateAlignment.
type AlignmentInput struct {
	Documents []domain.StageDocument `json:"documents"`
}

// RevisionInput is the input of ProposeRevisions.
type RevisionInput struct {
	Documents    map[string]string                      `json:"documents"`
	StageResults map[string]*domain.OrchestrationResult `json:"stage_results"`
	Alignment    []domain.AlignmentResult               `json:"alignment"`
}

// Activities adapts the pipeline collaborators to Temporal.
type Activities struct {
	pkgactivity.BaseActivities
	auditor   pipeline.StageAuditor
	alignment pipeline.AlignmentValidator
	revisions pipeline.RevisionStrategy
	store     RunStore
}

// NewActivities wires the activity set. Nil alignment and revision
// collaborators default to AlwaysAligned and NoRevision; a nil store skips
// persistence.
func NewActivities(
	base pkgactivity.BaseActivities,
	auditor pipeline.StageAuditor,
	alignment pipeline.AlignmentValidator,
	revisions pipeline.RevisionStrategy,
	store RunStore,
) *Activities {
	if alignment == nil {
		alignment = pipeline.AlwaysAligned{}
	}
	if revisions == nil {
		revisions = pipeline.NoRevision{}
	}
	return &Activities{
		BaseActivities: base,
		auditor:        auditor,
		alignment:      alignment,
		revisions:      revisions,
		store:          store,
	}
}

// ExecuteStageAudit runs one stage panel. Auditor failures are part of the
// result; only cancellation fails the activity.
func (a *Activities) ExecuteStageAudit(ctx context.Context, in StageAuditInput) (*domain.OrchestrationResult, error) {
	if strings.TrimSpace(in.Stage) == "" {
		return nil, pkgactivity.NonRetryable(ActivityExecuteStageAudit,
			fmt.Errorf("%w: stage is required", ErrInvalidInput), "invalid input")
	}
	if a.auditor == nil {
		return nil, pkgactivity.NonRetryable(ActivityExecuteStageAudit,
			errors.New("no stage auditor configured"), "worker misconfigured")
	}

	wf := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "stage audit started",
		"workflow_id", wf.WorkflowID, "stage", in.Stage, "iteration", in.Iteration, "attempt", wf.Attempt)
	a.RecordHeartbeat(ctx, in.Stage)

	res, err := a.auditor.ExecuteStageAudit(orchestrator.WithRun(ctx, in.RunID, in.Iteration), in.Stage, in.Document)
	if err != nil {
		return nil, pkgactivity.Retryable(ActivityExecuteStageAudit, err, "stage audit interrupted")
	}

	pkgactivity.SafeLog(ctx, "stage audit completed",
		"stage", in.Stage, "success", res.Success, "failed_auditors", len(res.FailedAuditors))
	return res, nil
}

// ValidateAlignment checks the document chain.
func (a *Activities) ValidateAlignment(ctx context.Context, in AlignmentInput) ([]domain.AlignmentResult, error) {
	a.RecordHeartbeat(ctx, len(in.Documents))
	results, err := a.alignment.ValidateDocumentChain(ctx, in.Documents)
	if err != nil {
		return nil, pkgactivity.Retryable(ActivityValidateAlignment, err, "alignment check failed")
	}
	if results == nil {
		results = []domain.AlignmentResult{}
	}
	return results, nil
}

// ProposeRevisions asks the configured strategy for new document content.
func (a *Activities) ProposeRevisions(ctx context.Context, in RevisionInput) (map[string]string, error) {
	proposed, err := a.revisions.ProposeRevisions(ctx, in.Documents, in.StageResults, in.Alignment)
	if err != nil {
		return nil, pkgactivity.Retryable(ActivityProposeRevisions, err, "revision proposal failed")
	}
	if proposed == nil {
		proposed = map[string]string{}
	}
	return proposed, nil
}

// SaveRun persists a finished run and emits pipeline.completed.
func (a *Activities) SaveRun(ctx context.Context, summary *domain.PipelineSummary) error {
	if summary == nil || summary.RunID == "" {
		return pkgactivity.NonRetryable(ActivitySaveRun,
			fmt.Errorf("%w: summary without run ID", ErrInvalidInput), "invalid input")
	}
	if a.store != nil {
		if err := a.store.SaveRun(ctx, summary); err != nil {
			pkgactivity.SafeLogError(ctx, "saving run failed", "run_id", summary.RunID, "error", err)
			return pkgactivity.Retryable(ActivitySaveRun, err, "saving run failed")
		}
	}

	env, err := events.NewEnvelope(domain.EventPipelineCompleted, "audit-activity", summary.RunID,
		domain.EventKey(summary.RunID, domain.EventPipelineCompleted),
		domain.PipelineCompletedPayload{
			State:       summary.State,
			Success:     summary.Success,
			Iterations:  summary.Iterations,
			TotalTokens: summary.TotalTokens(),
			TotalCost:   summary.TotalCost(),
		})
	if err == nil {
		a.EmitEventSafe(ctx, env, "pipeline completed")
	}
	return nil
}
