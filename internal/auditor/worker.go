// Package auditor executes a single auditor's LLM call: cache lookup,
// per-attempt timeout, response validation, retry with backoff, and cache
// write on validated success.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErikCohenDev/consensus-council/internal/cache"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/retry"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// Defaults applied by NewWorker for zero-valued Config fields.
const (
	DefaultMaxRetries  = 3
	DefaultTimeout     = 60 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultTemperature = 0.1
)

// DefaultSystemPrompt instructs the model to answer with the auditor JSON contract.
const DefaultSystemPrompt = "You are an expert document auditor. Respond with a single JSON object only, " +
	"containing auditor_role, overall_assessment and blocking_issues."

// Config controls one worker's model call and retry behavior.
type Config struct {
	Provider     string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int64

	// MaxRetries is the total number of attempts. A permanent provider
	// error, such as rejected credentials, ends the loop early.
	MaxRetries int
	// Timeout bounds each attempt, not the worker's lifetime.
	Timeout time.Duration
	// BaseDelay scales the linear backoff: BaseDelay * attempt.
	BaseDelay time.Duration

	EnableCache bool
}

// Result is one auditor's validated outcome.
type Result struct {
	Response domain.AuditorResponse
	Usage    transport.Usage
	CostUSD  float64
	CacheHit bool
	Attempts int
}

// Worker produces one validated AuditorResponse for a (role, stage) pair.
type Worker struct {
	role   string
	stage  string
	cfg    Config
	client llm.Completer
	cache  cache.Cache
	logger *slog.Logger
}

// NewWorker builds a worker. A nil cache behaves as a disabled cache.
func NewWorker(role, stage string, client llm.Completer, c cache.Cache, cfg Config) (*Worker, error) {
	if role == "" {
		return nil, ErrNoRole
	}
	if client == nil {
		return nil, errors.New("auditor worker requires an LLM client")
	}
	if c == nil || !cfg.EnableCache {
		c = cache.Disabled{}
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	return &Worker{
		role:   role,
		stage:  stage,
		cfg:    cfg,
		client: client,
		cache:  c,
		logger: slog.Default().With("component", "auditor", "role", role, "stage", stage),
	}, nil
}

// Role returns the auditor role this worker serves.
func (w *Worker) Role() string { return w.role }

// ExecuteAudit returns a validated response for prompt. A cache hit returns
// without calling the model. Otherwise each attempt runs under its own
// timeout and any failure is retried with linear backoff until MaxRetries
// attempts are spent, after which an *ExecutionError is returned.
func (w *Worker) ExecuteAudit(ctx context.Context, prompt, templateContent, documentContent string) (*Result, error) {
	key := cache.Key(w.cfg.Model, templateContent, prompt, documentContent)

	if cached, ok := w.lookup(ctx, key); ok {
		return cached, nil
	}

	policy := retry.Policy{
		MaxAttempts: w.cfg.MaxRetries,
		Backoff:     retry.Linear(w.cfg.BaseDelay),
		Retryable:   w.retryable(ctx),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			w.logger.Warn("auditor attempt failed, retrying",
				"attempt", attempt, "max_attempts", w.cfg.MaxRetries, "delay", delay, "error", err)
		},
	}

	result, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*Result, error) {
		r, raw, err := w.attempt(ctx, prompt)
		if err != nil {
			return nil, err
		}
		r.Attempts = attempt
		if setErr := w.cache.Set(ctx, key, raw); setErr != nil {
			w.logger.Warn("cache write failed", "key", key, "error", setErr)
		}
		return r, nil
	})
	if err != nil {
		return nil, &ExecutionError{
			Role:     w.role,
			Stage:    w.stage,
			Attempts: retry.Attempts(err),
			Err:      err,
		}
	}

	w.logger.Info("auditor completed",
		"score", result.Response.Score(),
		"pass", result.Response.Passed(),
		"attempts", result.Attempts,
		"tokens", result.Usage.TotalTokens)
	return result, nil
}

// lookup returns a cached result. Entries that no longer validate are misses.
func (w *Worker) lookup(ctx context.Context, key string) (*Result, bool) {
	raw, ok, err := w.cache.Get(ctx, key)
	if err != nil {
		w.logger.Warn("cache read failed, calling model", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	resp, _, err := ParseResponse(string(raw))
	if err != nil {
		w.logger.Warn("cached entry failed validation, calling model", "key", key, "error", err)
		return nil, false
	}
	w.logger.Debug("auditor cache hit", "key", key)
	return &Result{Response: *resp, CacheHit: true}, true
}

// attempt performs one timed model call and validates the result.
func (w *Worker) attempt(ctx context.Context, prompt string) (*Result, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	resp, err := w.client.Complete(attemptCtx, &transport.Request{
		Provider:     w.cfg.Provider,
		Model:        w.cfg.Model,
		SystemPrompt: w.cfg.SystemPrompt,
		UserPrompt:   prompt,
		Temperature:  w.cfg.Temperature,
		MaxTokens:    w.cfg.MaxTokens,
		JSONMode:     true,
		Metadata:     map[string]string{"role": w.role, "stage": w.stage},
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, w.cfg.Timeout, err)
		}
		return nil, nil, err
	}

	parsed, raw, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, nil, &ValidationError{Role: w.role, Err: err}
	}

	return &Result{
		Response: *parsed,
		Usage:    resp.Usage,
		CostUSD:  resp.EstimatedCostUSD,
	}, raw, nil
}

// retryable stops retrying once the caller's context ends or the provider
// reports a permanent failure such as bad credentials.
func (w *Worker) retryable(parent context.Context) func(error) bool {
	return func(err error) bool {
		if parent.Err() != nil {
			return false
		}
		var ve *ValidationError
		if errors.As(err, &ve) || errors.Is(err, ErrAttemptTimeout) {
			return true
		}
		return llmerrors.IsRetryable(err)
	}
}
