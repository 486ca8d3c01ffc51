// Package pipeline drives a multi-stage gated document review. Each
// iteration audits every stage in order, checks alignment across the stage
// chain, and either finishes or asks a revision strategy for new content.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/orchestrator"
	"github.com/ErikCohenDev/consensus-council/pkg/events"
)

const instrumentationName = "github.com/ErikCohenDev/consensus-council/internal/pipeline"

// Orchestrator runs pipelines. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	auditor   StageAuditor
	alignment AlignmentValidator
	emitter   *events.Emitter
	logger    *slog.Logger
	tracer    trace.Tracer
	newRunID  func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter sets the emitter for iteration and completion events.
func WithEmitter(e *events.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With("component", "pipeline") }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New builds a pipeline orchestrator. A nil validator uses AlwaysAligned.
func New(auditor StageAuditor, validator AlignmentValidator, opts ...Option) (*Orchestrator, error) {
	if auditor == nil {
		return nil, errors.New("pipeline requires a stage auditor")
	}
	if validator == nil {
		validator = AlwaysAligned{}
	}
	o := &Orchestrator{
		auditor:   auditor,
		alignment: validator,
		logger:    slog.Default().With("component", "pipeline"),
		tracer:    otel.Tracer(instrumentationName),
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Request describes one pipeline run.
type Request struct {
	// RunID identifies the run. Empty generates a new one.
	RunID         string
	Documents     map[string]string
	Stages        []string
	MaxIterations int
	// Strategy proposes revisions. Nil means NoRevision.
	Strategy RevisionStrategy
}

// Validate rejects runs that cannot make progress.
func (r Request) Validate() error {
	if r.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1, got %d", domain.ErrInvalidPipelineRequest, r.MaxIterations)
	}
	if len(r.Stages) == 0 {
		return fmt.Errorf("%w: no stages", domain.ErrInvalidPipelineRequest)
	}
	seen := make(map[string]struct{}, len(r.Stages))
	for _, s := range r.Stages {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: blank stage name", domain.ErrInvalidPipelineRequest)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: duplicate stage %q", domain.ErrInvalidPipelineRequest, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// Run executes the pipeline over a copy of documents. It returns within
// MaxIterations iterations and stops at once when the strategy proposes no
// change. Exhaustion and a stopped run are normal results, not errors; an
// error means the request was invalid, ctx ended, or a collaborator failed
// outside its contract.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.PipelineSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	strategy := req.Strategy
	if strategy == nil {
		strategy = NoRevision{}
	}

	summary := &domain.PipelineSummary{
		RunID:         req.RunID,
		Stages:        append([]string(nil), req.Stages...),
		MaxIterations: req.MaxIterations,
		Documents:     domain.CloneDocuments(req.Documents),
		StartedAt:     time.Now().UTC(),
	}
	if summary.Documents == nil {
		summary.Documents = map[string]string{}
	}
	if summary.RunID == "" {
		summary.RunID = o.newRunID()
	}
	logger := o.logger.With("run_id", summary.RunID)

	ctx, span := o.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("council.run_id", summary.RunID),
		attribute.Int("council.stages", len(req.Stages)),
		attribute.Int("council.max_iterations", req.MaxIterations),
	))
	defer span.End()

	logger.Info("pipeline started", "stages", req.Stages, "max_iterations", req.MaxIterations)

	for {
		summary.Iterations++
		iteration := summary.Iterations

		stageResults, alignment, err := o.iterate(ctx, summary.RunID, iteration, req.Stages, summary.Documents)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		summary.StageResults = stageResults
		summary.AlignmentResults = alignment

		gate := Decide(iteration, req.MaxIterations, req.Stages, stageResults, alignment)
		payload := domain.IterationCompletedPayload{
			Iteration:    iteration,
			StagesPassed: gate.StagesPassed,
			AllAligned:   gate.AllAligned,
			FailedStages: gate.FailedStages,
		}

		switch gate.Step {
		case StepSucceed:
			return o.complete(ctx, span, summary, domain.PipelineSuccess, payload), nil
		case StepExhaust:
			return o.complete(ctx, span, summary, domain.PipelineExhausted, payload), nil
		}

		proposed, err := strategy.ProposeRevisions(ctx, domain.CloneDocuments(summary.Documents), stageResults, alignment)
		if err != nil {
			err = fmt.Errorf("propose revisions: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		revisions, revised := EffectiveRevisions(summary.Documents, proposed)
		if len(revisions) == 0 {
			logger.Info("no revisions proposed, stopping", "iteration", iteration)
			return o.complete(ctx, span, summary, domain.PipelineStoppedNoRevision, payload), nil
		}

		for stage, content := range revisions {
			summary.Documents[stage] = content
		}
		payload.RevisedStages = revised
		payload.NextState = "RUNNING"
		o.emitIteration(ctx, summary.RunID, payload)
		logger.Info("documents revised", "iteration", iteration, "stages", revised)
	}
}

// iterate audits every stage in order and then validates alignment.
func (o *Orchestrator) iterate(
	ctx context.Context,
	runID string,
	iteration int,
	stages []string,
	documents map[string]string,
) (map[string]*domain.OrchestrationResult, []domain.AlignmentResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.iteration",
		trace.WithAttributes(attribute.Int("council.iteration", iteration)))
	defer span.End()

	stageCtx := orchestrator.WithRun(ctx, runID, iteration)
	results := make(map[string]*domain.OrchestrationResult, len(stages))
	for _, stage := range stages {
		doc, ok := documents[stage]
		if !ok {
			results[stage] = MissingDocumentResult(stage)
			o.logger.Warn("stage has no document", "run_id", runID, "stage", stage)
			continue
		}
		res, err := o.auditor.ExecuteStageAudit(stageCtx, stage, doc)
		if err != nil {
			return nil, nil, fmt.Errorf("iteration %d stage %s: %w", iteration, stage, err)
		}
		results[stage] = res
	}

	alignment, err := o.alignment.ValidateDocumentChain(ctx, domain.OrderedDocuments(stages, documents))
	if err != nil {
		return nil, nil, fmt.Errorf("iteration %d alignment: %w", iteration, err)
	}
	if alignment == nil {
		alignment = []domain.AlignmentResult{}
	}
	return results, alignment, nil
}

// MissingDocumentResult is the failed stage result recorded when a stage has
// no document. No auditor is called for it.
func MissingDocumentResult(stage string) *domain.OrchestrationResult {
	return &domain.OrchestrationResult{
		Stage:            stage,
		AuditorResponses: []domain.AuditorResponse{},
		FailedAuditors:   []string{},
		Error:            fmt.Sprintf("%v: %s", domain.ErrMissingDocument, stage),
	}
}

func (o *Orchestrator) complete(
	ctx context.Context,
	span trace.Span,
	summary *domain.PipelineSummary,
	state domain.PipelineState,
	payload domain.IterationCompletedPayload,
) *domain.PipelineSummary {
	summary.State = state
	summary.Success = state == domain.PipelineSuccess
	summary.FinishedAt = time.Now().UTC()

	payload.NextState = string(state)
	o.emitIteration(ctx, summary.RunID, payload)
	o.emitter.Emit(ctx, domain.EventPipelineCompleted, summary.RunID,
		domain.EventKey(summary.RunID, domain.EventPipelineCompleted),
		domain.PipelineCompletedPayload{
			State:       state,
			Success:     summary.Success,
			Iterations:  summary.Iterations,
			TotalTokens: summary.TotalTokens(),
			TotalCost:   summary.TotalCost(),
		})

	span.SetAttributes(
		attribute.String("council.state", string(state)),
		attribute.Int("council.iterations", summary.Iterations))
	if !summary.Success {
		span.SetStatus(codes.Error, string(state))
	}

	o.logger.Info("pipeline finished",
		"run_id", summary.RunID,
		"state", state,
		"iterations", summary.Iterations,
		"tokens", summary.TotalTokens(),
		"cost_usd", summary.TotalCost(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary
}

func (o *Orchestrator) emitIteration(ctx context.Context, runID string, p domain.IterationCompletedPayload) {
	o.emitter.Emit(ctx, domain.EventIterationCompleted, runID,
		domain.EventKey(runID, domain.EventIterationCompleted, p.Iteration), p)
}
