// Package alignment asks a model whether consecutive stage documents are
// consistent with each other.
package alignment

import (
	"context"
	"encoding/json"
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
	"github.com/ErikCohenDev/consensus-council/internal/schema"
)

// DefaultMinScore is the alignment score a pair needs to count as aligned.
const DefaultMinScore = 0.7

const systemPrompt = "You check whether two consecutive planning documents are consistent. " +
	`Respond with one JSON object: {"is_aligned": bool, "alignment_score": number from 0 to 1, "misalignments": [string]}.`

const promptTemplate = `The %[1]s document is the upstream source for the %[2]s document.
List every place where %[2]s contradicts, drops or goes beyond %[1]s without justification.

--- BEGIN %[1]s ---
%[3]s
--- END %[1]s ---

--- BEGIN %[2]s ---
%[4]s
--- END %[2]s ---`

const responseSchema = `{
	"type": "object",
	"required": ["is_aligned", "alignment_score"],
	"properties": {
		"is_aligned": {"type": "boolean"},
		"alignment_score": {"type": "number", "minimum": 0, "maximum": 1},
		"misalignments": {"type": ["array", "null"], "items": {"type": "string"}}
	}
}`

var alignmentSchema = schema.MustCompile("alignment-response", responseSchema)

// ErrInvalidResponse marks a completion that failed validation.
var ErrInvalidResponse = errors.New("invalid alignment response")

// Config controls the validator's model calls.
type Config struct {
	Provider    string
	Model       string
	MinScore    float64
	MaxRetries  int
	Timeout     time.Duration
	BaseDelay   time.Duration
	EnableCache bool
}

// Validator is an LLM-backed pipeline.AlignmentValidator.
type Validator struct {
	client llm.Completer
	cache  cache.Cache
	cfg    Config
	logger *slog.Logger
}

// New builds a validator. A nil cache or EnableCache=false disables caching.
func New(client llm.Completer, c cache.Cache, cfg Config) (*Validator, error) {
	if client == nil {
		return nil, errors.New("alignment validator requires an LLM client")
	}
	if c == nil || !cfg.EnableCache {
		c = cache.Disabled{}
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Validator{
		client: client,
		cache:  c,
		cfg:    cfg,
		logger: slog.Default().With("component", "alignment"),
	}, nil
}

type verdict struct {
	IsAligned      bool     `json:"is_aligned"`
	AlignmentScore float64  `json:"alignment_score"`
	Misalignments  []string `json:"misalignments"`
}

// ValidateDocumentChain checks each consecutive pair in order. A pair whose
// check fails after every retry is reported as misaligned with the failure
// as its reason; only cancellation of ctx is returned as an error.
func (v *Validator) ValidateDocumentChain(ctx context.Context, documents []domain.StageDocument) ([]domain.AlignmentResult, error) {
	results := make([]domain.AlignmentResult, 0, max(len(documents)-1, 0))
	for i := 1; i < len(documents); i++ {
		src, dst := documents[i-1], documents[i]
		res, err := v.checkPair(ctx, src, dst)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			v.logger.Warn("alignment check failed", "source", src.Stage, "target", dst.Stage, "error", err)
			res = domain.AlignmentResult{
				SourceStage:   src.Stage,
				TargetStage:   dst.Stage,
				Misalignments: []string{fmt.Sprintf("alignment check failed: %v", err)},
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (v *Validator) checkPair(ctx context.Context, src, dst domain.StageDocument) (domain.AlignmentResult, error) {
	prompt := fmt.Sprintf(promptTemplate, src.Stage, dst.Stage, src.Content, dst.Content)
	key := cache.Key(v.cfg.Model, promptTemplate, src.Stage+"\x00"+dst.Stage, src.Content+"\x00"+dst.Content)

	vd, ok := v.cached(ctx, key)
	if !ok {
		var err error
		vd, err = retry.Do(ctx, retry.Policy{
			MaxAttempts: v.cfg.MaxRetries,
			Backoff:     retry.Linear(v.cfg.BaseDelay),
			Retryable: func(err error) bool {
				return ctx.Err() == nil && (errors.Is(err, ErrInvalidResponse) || llmerrors.IsRetryable(err))
			},
		}, func(ctx context.Context, _ int) (verdict, error) {
			return v.ask(ctx, key, prompt)
		})
		if err != nil {
			return domain.AlignmentResult{}, err
		}
	}

	misalignments := vd.Misalignments
	if misalignments == nil {
		misalignments = []string{}
	}
	return domain.AlignmentResult{
		SourceStage:    src.Stage,
		TargetStage:    dst.Stage,
		IsAligned:      vd.IsAligned && vd.AlignmentScore >= v.cfg.MinScore,
		AlignmentScore: vd.AlignmentScore,
		Misalignments:  misalignments,
	}, nil
}

func (v *Validator) ask(ctx context.Context, key, prompt string) (verdict, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	resp, err := v.client.Complete(attemptCtx, &transport.Request{
		Provider:     v.cfg.Provider,
		Model:        v.cfg.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		JSONMode:     true,
		Metadata:     map[string]string{"role": "alignment"},
	})
	if err != nil {
		return verdict{}, err
	}
	vd, raw, err := parse(resp.Content)
	if err != nil {
		return verdict{}, err
	}
	if err := v.cache.Set(ctx, key, raw); err != nil {
		v.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return vd, nil
}

// cached returns a cached verdict. Read errors and entries that no longer
// validate are misses.
func (v *Validator) cached(ctx context.Context, key string) (verdict, bool) {
	raw, ok, err := v.cache.Get(ctx, key)
	if err != nil || !ok {
		return verdict{}, false
	}
	vd, _, err := parse(string(raw))
	return vd, err == nil
}

func parse(content string) (verdict, json.RawMessage, error) {
	repaired := []byte(llm.RepairJSON(content))
	if err := alignmentSchema.Validate(repaired); err != nil {
		return verdict{}, nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	var vd verdict
	if err := json.Unmarshal(repaired, &vd); err != nil {
		return verdict{}, nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return vd, repaired, nil
}
