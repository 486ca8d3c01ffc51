package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ErikCohenDev/consensus-council/internal/audit"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
)

// DefaultStageTimeout bounds one stage audit activity, including the
// auditor workers' own retries.
const DefaultStageTimeout = 10 * time.Minute

// PipelineInput starts a pipeline run.
type PipelineInput struct {
	// RunID defaults to the workflow ID.
	RunID         string            `json:"run_id"`
	Documents     map[string]string `json:"documents"`
	Stages        []string          `json:"stages"`
	MaxIterations int               `json:"max_iterations"`
	StageTimeout  time.Duration     `json:"stage_timeout"`
}

// PipelineWorkflow audits every stage, validates alignment and revises
// documents until the run succeeds, exhausts MaxIterations or the revision
// strategy has nothing left to change. The summary is persisted by the
// SaveRun activity before the workflow returns it.
func PipelineWorkflow(ctx workflow.Context, in PipelineInput) (*domain.PipelineSummary, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "pipeline.v", workflow.DefaultVersion, currentVersion)

	req := pipeline.Request{
		RunID:         in.RunID,
		Documents:     in.Documents,
		Stages:        in.Stages,
		MaxIterations: in.MaxIterations,
	}
	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid pipeline request", "Validation", err)
	}

	timeout := in.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)

	summary := &domain.PipelineSummary{
		RunID:         in.RunID,
		Stages:        append([]string(nil), in.Stages...),
		MaxIterations: in.MaxIterations,
		Documents:     domain.CloneDocuments(in.Documents),
		StartedAt:     workflow.Now(ctx).UTC(),
	}
	if summary.RunID == "" {
		summary.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if summary.Documents == nil {
		summary.Documents = map[string]string{}
	}

	for {
		summary.Iterations++
		iteration := summary.Iterations

		results, err := auditStages(ctx, summary, iteration)
		if err != nil {
			return nil, err
		}
		summary.StageResults = results

		var alignment []domain.AlignmentResult
		err = workflow.ExecuteActivity(ctx, audit.ActivityValidateAlignment, audit.AlignmentInput{
			Documents: domain.OrderedDocuments(summary.Stages, summary.Documents),
		}).Get(ctx, &alignment)
		if err != nil {
			return nil, err
		}
		summary.AlignmentResults = alignment

		gate := pipeline.Decide(iteration, summary.MaxIterations, summary.Stages, results, alignment)
		logger.Info("pipeline iteration completed",
			"run_id", summary.RunID,
			"iteration", iteration,
			"stages_passed", gate.StagesPassed,
			"all_aligned", gate.AllAligned,
			"failed_stages", gate.FailedStages)

		switch gate.Step {
		case pipeline.StepSucceed:
			return finish(ctx, summary, domain.PipelineSuccess)
		case pipeline.StepExhaust:
			return finish(ctx, summary, domain.PipelineExhausted)
		}

		var proposed map[string]string
		err = workflow.ExecuteActivity(ctx, audit.ActivityProposeRevisions, audit.RevisionInput{
			Documents:    domain.CloneDocuments(summary.Documents),
			StageResults: results,
			Alignment:    alignment,
		}).Get(ctx, &proposed)
		if err != nil {
			return nil, err
		}

		revisions, revised := pipeline.EffectiveRevisions(summary.Documents, proposed)
		if len(revisions) == 0 {
			return finish(ctx, summary, domain.PipelineStoppedNoRevision)
		}
		for _, stage := range revised {
			summary.Documents[stage] = revisions[stage]
		}
		logger.Info("documents revised", "run_id", summary.RunID, "iteration", iteration, "stages", revised)
	}
}

// auditStages runs one audit activity per stage, in stage order, waiting
// for each before starting the next. Stage audits share the worker's
// auditor concurrency limit, so overlapping them would only queue auditors
// behind the activity timeout.
func auditStages(ctx workflow.Context, summary *domain.PipelineSummary, iteration int) (map[string]*domain.OrchestrationResult, error) {
	results := make(map[string]*domain.OrchestrationResult, len(summary.Stages))
	for _, stage := range summary.Stages {
		doc, ok := summary.Documents[stage]
		if !ok {
			results[stage] = pipeline.MissingDocumentResult(stage)
			continue
		}
		var res *domain.OrchestrationResult
		err := workflow.ExecuteActivity(ctx, audit.ActivityExecuteStageAudit, audit.StageAuditInput{
			RunID:     summary.RunID,
			Iteration: iteration,
			Stage:     stage,
			Document:  doc,
		}).Get(ctx, &res)
		if err != nil {
			return nil, err
		}
		results[stage] = res
	}
	return results, nil
}

func finish(ctx workflow.Context, summary *domain.PipelineSummary, state domain.PipelineState) (*domain.PipelineSummary, error) {
	summary.State = state
	summary.Success = state == domain.PipelineSuccess
	summary.FinishedAt = workflow.Now(ctx).UTC()

	if err := workflow.ExecuteActivity(ctx, audit.ActivitySaveRun, summary).Get(ctx, nil); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("pipeline finished",
		"run_id", summary.RunID, "state", state, "iterations", summary.Iterations)
	return summary, nil
}
