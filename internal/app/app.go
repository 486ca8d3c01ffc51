// Package app constructs the council's components from configuration and
// hands them out explicitly. Nothing here is package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/ErikCohenDev/consensus-council/internal/alignment"
	"github.com/ErikCohenDev/consensus-council/internal/audit"
	"github.com/ErikCohenDev/consensus-council/internal/cache"
	"github.com/ErikCohenDev/consensus-council/internal/config"
	"github.com/ErikCohenDev/consensus-council/internal/consensus"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	"github.com/ErikCohenDev/consensus-council/internal/llm/providers"
	"github.com/ErikCohenDev/consensus-council/internal/orchestrator"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
	"github.com/ErikCohenDev/consensus-council/internal/revision"
	"github.com/ErikCohenDev/consensus-council/internal/store"
	"github.com/ErikCohenDev/consensus-council/internal/templates"
	pkgactivity "github.com/ErikCohenDev/consensus-council/pkg/activity"
	"github.com/ErikCohenDev/consensus-council/pkg/events"
)

// App holds the wired components for one process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Cache     *cache.Instrumented
	Client    llm.Completer
	Templates *templates.Engine
	Engine    *consensus.Engine
	Auditor   *orchestrator.Orchestrator
	Alignment pipeline.AlignmentValidator
	Revisions pipeline.RevisionStrategy
	Pipeline  *pipeline.Orchestrator
	Store     *store.Store
	Emitter   *events.Emitter
}

type options struct {
	client llm.Completer
	logger *slog.Logger
	sink   events.Sink
}

// Option customizes New.
type Option func(*options)

// WithCompleter replaces the provider-backed LLM client.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.client = c }
}

// WithLogger sets the root logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventSink replaces the slog event sink.
func WithEventSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

// New validates cfg and builds every component. The caller must Close the
// returned App.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.sink == nil {
		o.sink = events.NewSlogSink(o.logger, slog.LevelDebug)
	}

	a := &App{Config: cfg, Logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	backend, err := cache.New(ctx, cfg.CacheBackendConfig())
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.Cache = cache.NewInstrumented(backend, cacheBackendName(cfg.Cache))

	a.Client = o.client
	if a.Client == nil {
		if a.Client, err = newClient(cfg, o.logger); err != nil {
			return nil, err
		}
	}

	if cfg.Templates.Path != "" {
		if a.Templates, err = templates.Load(cfg.Templates.Path); err != nil {
			return nil, err
		}
	} else {
		a.Templates = templates.Default()
	}

	if a.Engine, err = consensus.NewEngine(cfg.ConsensusPolicy()); err != nil {
		return nil, err
	}

	a.Emitter = events.NewEmitter(o.sink, "council", o.logger)

	a.Auditor, err = orchestrator.New(a.Templates, a.Client, a.Cache, a.Engine, orchestrator.Config{
		MaxParallel: cfg.Auditor.MaxParallel,
		Auditor:     cfg.WorkerConfig(),
		Models:      cfg.LLM.Models,
	}, orchestrator.WithEmitter(a.Emitter), orchestrator.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	a.Alignment = pipeline.AlwaysAligned{}
	if cfg.Alignment.Enabled {
		if a.Alignment, err = alignment.New(a.Client, a.Cache, cfg.AlignmentValidatorConfig()); err != nil {
			return nil, err
		}
	}

	a.Revisions = pipeline.NoRevision{}
	if cfg.Revision.Enabled {
		if a.Revisions, err = revision.New(a.Client, cfg.RevisionerConfig()); err != nil {
			return nil, err
		}
	}

	if a.Pipeline, err = pipeline.New(a.Auditor, a.Alignment,
		pipeline.WithEmitter(a.Emitter), pipeline.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	if a.Store, err = store.Open(ctx, cfg.Store.Path); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// RunPipeline runs req in process and records the summary in the run
// history. A nil req.Strategy uses the configured revisions. A failed save
// is returned alongside the summary.
func (a *App) RunPipeline(ctx context.Context, req pipeline.Request) (*domain.PipelineSummary, error) {
	if req.Strategy == nil {
		req.Strategy = a.Revisions
	}
	summary, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.Store.SaveRun(ctx, summary); err != nil {
		return summary, fmt.Errorf("save run %s: %w", summary.RunID, err)
	}
	return summary, nil
}

// Stages returns the configured pipeline stage order. Without one it falls
// back to the template file's stage order, then to config.DefaultStages.
func (a *App) Stages() []string {
	if len(a.Config.Pipeline.Stages) > 0 {
		return slices.Clone(a.Config.Pipeline.Stages)
	}
	if stages := a.Templates.Stages(); len(stages) > 0 {
		return stages
	}
	return slices.Clone(config.DefaultStages)
}

// Activities builds the Temporal activity set over the app's components.
func (a *App) Activities() *audit.Activities {
	base := pkgactivity.NewBaseActivities(a.Emitter)
	return audit.NewActivities(base, a.Auditor, a.Alignment, a.Revisions, a.Store)
}

// Close releases the cache and store.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		stats := a.Cache.Stats()
		a.Logger.Debug("cache stats", "component", "app",
			"hits", stats.Hits, "misses", stats.Misses, "errors", stats.Errors)
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func newClient(cfg *config.Config, logger *slog.Logger) (*llm.Client, error) {
	client, err := llm.NewClient(llm.Config{
		DefaultProvider: cfg.LLM.Provider,
		Providers: []providers.Config{{
			Name:     cfg.LLM.Provider,
			Endpoint: cfg.LLM.Endpoint,
			APIKey:   cfg.LLM.ResolvedAPIKey(),
		}},
		RateLimit: cfg.RateLimiterConfig(),
		Pricing:   llm.PricingTable(cfg.LLM.Pricing),
		Logger:    logger.With("component", "llm"),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize LLM client: %w", err)
	}
	return client, nil
}

func cacheBackendName(c config.CacheConfig) string {
	if !c.Enabled {
		return "disabled"
	}
	if c.Backend == "" {
		return cache.BackendMemory
	}
	return c.Backend
}

// NewLogger builds a slog logger from the log section, writing to w.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
