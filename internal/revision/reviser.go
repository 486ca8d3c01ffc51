// Package revision rewrites stage documents from auditor and alignment
// feedback with an LLM. Reviser implements pipeline.RevisionStrategy.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	llmerrors "github.com/ErikCohenDev/consensus-council/internal/llm/errors"
	"github.com/ErikCohenDev/consensus-council/internal/llm/retry"
	"github.com/ErikCohenDev/consensus-council/internal/llm/transport"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultMaxRetries  = 3
	DefaultTimeout     = 120 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4000
)

const systemPrompt = "You revise product planning documents. Address every piece of reviewer feedback " +
	"while keeping content that was not criticized. Reply with the complete revised document in " +
	"Markdown and nothing else."

// ErrEmptyRevision is returned for an attempt whose reply has no document.
var ErrEmptyRevision = errors.New("empty revision")

// Config controls revision calls.
type Config struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int64
	MaxRetries  int
	Timeout     time.Duration
	// BaseDelay starts a jittered exponential backoff that doubles per
	// attempt up to DefaultMaxDelay.
	BaseDelay time.Duration
}

// Reviser asks a model to rewrite documents that failed their gate.
type Reviser struct {
	client llm.Completer
	cfg    Config
	logger *slog.Logger
}

// New builds a Reviser.
func New(client llm.Completer, cfg Config) (*Reviser, error) {
	if client == nil {
		return nil, errors.New("reviser requires an LLM client")
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
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Reviser{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "revision"),
	}, nil
}

// ProposeRevisions returns new content for every stage with feedback. A
// stage whose revision keeps failing is left out, so the pipeline treats it
// as unrevised; only cancellation is returned as an error.
func (r *Reviser) ProposeRevisions(
	ctx context.Context,
	documents map[string]string,
	stageResults map[string]*domain.OrchestrationResult,
	alignment []domain.AlignmentResult,
) (map[string]string, error) {
	feedback := Feedback(documents, stageResults, alignment)
	out := make(map[string]string, len(feedback))

	for _, stage := range slices.Sorted(maps.Keys(feedback)) {
		revised, err := r.revise(ctx, stage, documents[stage], feedback[stage])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("revision failed, keeping document", "stage", stage, "error", err)
			continue
		}
		out[stage] = revised
	}
	return out, nil
}

func (r *Reviser) revise(ctx context.Context, stage, document string, notes []string) (string, error) {
	prompt := buildPrompt(stage, document, notes)
	policy := retry.Policy{
		MaxAttempts: r.cfg.MaxRetries,
		Backoff:     retry.Exponential(r.cfg.BaseDelay, 2, DefaultMaxDelay, true),
		Retryable: func(err error) bool {
			return ctx.Err() == nil && (errors.Is(err, ErrEmptyRevision) || llmerrors.IsRetryable(err))
		},
		RetryAfter: llmerrors.RetryAfter,
	}

	return retry.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		resp, err := r.client.Complete(attemptCtx, &transport.Request{
			Provider:     r.cfg.Provider,
			Model:        r.cfg.Model,
			SystemPrompt: systemPrompt,
			UserPrompt:   prompt,
			Temperature:  r.cfg.Temperature,
			MaxTokens:    r.cfg.MaxTokens,
			Metadata:     map[string]string{"stage": stage, "purpose": "revision"},
		})
		if err != nil {
			return "", err
		}
		doc := stripFence(resp.Content)
		if doc == "" {
			return "", fmt.Errorf("%w for stage %s", ErrEmptyRevision, stage)
		}
		return doc, nil
	})
}

// Feedback gathers revision notes per stage: consensus failure reasons and
// blocking issues for stages that did not pass, and misalignments against
// the target stage of each misaligned pair. Stages without a document are
// skipped.
func Feedback(
	documents map[string]string,
	stageResults map[string]*domain.OrchestrationResult,
	alignment []domain.AlignmentResult,
) map[string][]string {
	notes := make(map[string][]string)
	for stage, res := range stageResults {
		if _, ok := documents[stage]; !ok || res == nil || res.Passed() {
			continue
		}
		var n []string
		if cr := res.ConsensusResult; cr != nil {
			n = append(n, cr.FailureReasons...)
		}
		for _, resp := range res.AuditorResponses {
			for _, issue := range resp.BlockingIssues {
				n = append(n, fmt.Sprintf("[%s, %s] %s", resp.AuditorRole, issue.Severity, issue.Description))
			}
			if !resp.Passed() && resp.OverallAssessment.Summary != "" {
				n = append(n, fmt.Sprintf("[%s] %s", resp.AuditorRole, resp.OverallAssessment.Summary))
			}
		}
		if len(n) == 0 {
			n = append(n, "The review panel did not approve this document.")
		}
		notes[stage] = n
	}

	for _, a := range alignment {
		if a.IsAligned {
			continue
		}
		if _, ok := documents[a.TargetStage]; !ok {
			continue
		}
		if len(a.Misalignments) == 0 {
			notes[a.TargetStage] = append(notes[a.TargetStage],
				fmt.Sprintf("Not aligned with the %s document.", a.SourceStage))
		}
		for _, m := range a.Misalignments {
			notes[a.TargetStage] = append(notes[a.TargetStage],
				fmt.Sprintf("Misaligned with %s: %s", a.SourceStage, m))
		}
	}
	return notes
}

func buildPrompt(stage, document string, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revise the following %s document.\n\nReviewer feedback:\n", stage)
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n--- BEGIN %s DOCUMENT ---\n%s\n--- END %s DOCUMENT ---\n", stage, document, stage)
	return b.String()
}

// stripFence removes one Markdown code fence wrapping the whole reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(s[3:], "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}
