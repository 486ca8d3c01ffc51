// Package orchestrator audits one stage document with its full auditor
// panel and computes consensus over the panel's responses.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ErikCohenDev/consensus-council/internal/auditor"
	"github.com/ErikCohenDev/consensus-council/internal/cache"
	"github.com/ErikCohenDev/consensus-council/internal/consensus"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	"github.com/ErikCohenDev/consensus-council/pkg/events"
)

const instrumentationName = "github.com/ErikCohenDev/consensus-council/internal/orchestrator"

// DefaultMaxParallel bounds in-flight auditor calls when Config leaves it unset.
const DefaultMaxParallel = 4

// ErrNoTemplates is returned by New without a template engine.
var ErrNoTemplates = errors.New("orchestrator requires a template engine")

// TemplateEngine supplies stage panels and auditor prompts.
type TemplateEngine interface {
	StageAuditors(stage string) []string
	AuditorPrompt(stage, role, document string) (string, error)
	// TemplateContent is the template text behind role's prompt, used for
	// cache fingerprints.
	TemplateContent(stage, role string) string
}

// modelResolver is optionally implemented by template engines that carry
// per-role model overrides.
type modelResolver interface {
	AuditorModel(role string) string
}

// systemPrompter is optionally implemented by template engines that carry
// a shared system prompt.
type systemPrompter interface {
	SystemPrompt() string
}

// Config controls panel execution.
type Config struct {
	// MaxParallel caps concurrent auditor calls across all stages served by
	// one Orchestrator.
	MaxParallel int

	// Auditor is the base worker configuration.
	Auditor auditor.Config

	// Models overrides Auditor.Model per role. It takes precedence over
	// template-level overrides.
	Models map[string]string
}

// Orchestrator runs auditor panels. It is safe for concurrent use.
type Orchestrator struct {
	templates TemplateEngine
	client    llm.Completer
	cache     cache.Cache
	engine    *consensus.Engine
	cfg       Config

	sem      chan struct{}
	emitter  *events.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter sets the event emitter for stage completion events.
func WithEmitter(e *events.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With("component", "orchestrator") }
}

// New builds an orchestrator. A nil cache disables caching.
func New(
	tmpl TemplateEngine,
	client llm.Completer,
	c cache.Cache,
	engine *consensus.Engine,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if tmpl == nil {
		return nil, ErrNoTemplates
	}
	if client == nil {
		return nil, errors.New("orchestrator requires an LLM client")
	}
	if engine == nil {
		return nil, errors.New("orchestrator requires a consensus engine")
	}
	if c == nil {
		c = cache.Disabled{}
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = DefaultMaxParallel
	}

	meter := otel.Meter(instrumentationName)
	hist, err := meter.Float64Histogram("council.stage.duration",
		metric.WithDescription("Wall-clock duration of a stage audit"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	o := &Orchestrator{
		templates: tmpl,
		client:    client,
		cache:     c,
		engine:    engine,
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.MaxParallel),
		logger:    slog.Default().With("component", "orchestrator"),
		tracer:    otel.Tracer(instrumentationName),
		duration:  hist,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// outcome is one auditor's slot in the fan-out.
type outcome struct {
	role   string
	result *auditor.Result
	err    error
}

// ExecuteStageAudit audits document with every auditor configured for
// stage. Auditor failures never abort siblings; they are recorded in
// FailedAuditors and consensus is withheld for the whole stage. An empty
// panel is reported as a failed result. The returned error is non-nil only
// when ctx ended before the panel completed.
func (o *Orchestrator) ExecuteStageAudit(ctx context.Context, stage, document string) (*domain.OrchestrationResult, error) {
	start := time.Now()
	roles := o.templates.StageAuditors(stage)

	ctx, span := o.tracer.Start(ctx, "orchestrator.ExecuteStageAudit",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("council.stage", stage),
			attribute.Int("council.auditors", len(roles)),
		))
	defer span.End()

	if len(roles) == 0 {
		res := &domain.OrchestrationResult{
			Stage:            stage,
			AuditorResponses: []domain.AuditorResponse{},
			FailedAuditors:   []string{},
			Error:            fmt.Sprintf("%v: %s", domain.ErrNoAuditors, stage),
			ExecutionTime:    time.Since(start),
		}
		span.SetStatus(codes.Error, res.Error)
		o.logger.Error("stage has no auditors configured", "stage", stage)
		o.finish(ctx, res)
		return res, nil
	}

	outcomes := o.fanOut(ctx, stage, document, roles)

	res := &domain.OrchestrationResult{
		Stage:            stage,
		AuditorResponses: make([]domain.AuditorResponse, 0, len(roles)),
		FailedAuditors:   []string{},
	}
	for _, out := range outcomes {
		if out.err != nil {
			res.FailedAuditors = append(res.FailedAuditors, out.role)
			o.logger.Warn("auditor failed", "stage", stage, "role", out.role, "error", out.err)
			span.RecordError(out.err, trace.WithAttributes(attribute.String("council.role", out.role)))
			continue
		}
		res.AuditorResponses = append(res.AuditorResponses, out.result.Response)
		res.TotalTokens += out.result.Usage.TotalTokens
		res.TotalCost += out.result.CostUSD
		if out.result.CacheHit {
			res.CacheHits++
		}
	}

	if len(res.FailedAuditors) == 0 {
		res.Success = true
		res.ConsensusResult = o.engine.Calculate(res.AuditorResponses)
		span.SetAttributes(attribute.String("council.decision", string(res.ConsensusResult.FinalDecision)))
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d auditors failed", len(res.FailedAuditors), len(roles)))
	}
	res.ExecutionTime = time.Since(start)

	o.finish(ctx, res)

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("stage %s: %w", stage, err)
	}
	return res, nil
}

// fanOut runs one worker per role under the shared semaphore and returns
// outcomes in role order.
func (o *Orchestrator) fanOut(ctx context.Context, stage, document string, roles []string) []outcome {
	outcomes := make([]outcome, len(roles))
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = o.runAuditor(ctx, stage, role, document)
		}()
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) runAuditor(ctx context.Context, stage, role, document string) (out outcome) {
	out.role = role
	defer func() {
		if r := recover(); r != nil {
			out.result, out.err = nil, fmt.Errorf("auditor %s panicked: %v", role, r)
		}
	}()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		out.err = ctx.Err()
		return out
	}

	prompt, err := o.templates.AuditorPrompt(stage, role, document)
	if err != nil {
		out.err = fmt.Errorf("build prompt: %w", err)
		return out
	}

	cfg := o.cfg.Auditor
	cfg.Model = o.modelFor(role)
	cfg.SystemPrompt = o.systemPrompt()
	w, err := auditor.NewWorker(role, stage, o.client, o.cache, cfg)
	if err != nil {
		out.err = err
		return out
	}

	out.result, out.err = w.ExecuteAudit(ctx, prompt, o.templates.TemplateContent(stage, role), document)
	return out
}

func (o *Orchestrator) modelFor(role string) string {
	if m := o.cfg.Models[role]; m != "" {
		return m
	}
	if r, ok := o.templates.(modelResolver); ok {
		if m := r.AuditorModel(role); m != "" {
			return m
		}
	}
	return o.cfg.Auditor.Model
}

// systemPrompt prefers Config.Auditor.SystemPrompt, then the template
// engine's. An empty result leaves the worker default in place.
func (o *Orchestrator) systemPrompt() string {
	if o.cfg.Auditor.SystemPrompt != "" {
		return o.cfg.Auditor.SystemPrompt
	}
	if p, ok := o.templates.(systemPrompter); ok {
		return p.SystemPrompt()
	}
	return ""
}

func (o *Orchestrator) finish(ctx context.Context, res *domain.OrchestrationResult) {
	o.duration.Record(ctx, res.ExecutionTime.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", res.Stage),
			attribute.Bool("success", res.Success),
		))

	o.logger.Info("stage audit completed",
		"stage", res.Stage,
		"success", res.Success,
		"responses", len(res.AuditorResponses),
		"failed", len(res.FailedAuditors),
		"decision", decisionOf(res),
		"tokens", res.TotalTokens,
		"cost_usd", res.TotalCost,
		"cache_hits", res.CacheHits,
		"duration", res.ExecutionTime)

	o.emitter.Emit(ctx, domain.EventStageCompleted, RunIDFromContext(ctx),
		domain.EventKey(RunIDFromContext(ctx), domain.EventStageCompleted, res.Stage, IterationFromContext(ctx)),
		domain.NewStageCompletedPayload(res))
}

func decisionOf(res *domain.OrchestrationResult) string {
	if res.ConsensusResult == nil {
		return "none"
	}
	return string(res.ConsensusResult.FinalDecision)
}
