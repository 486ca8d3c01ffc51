// Package consensus turns a full panel of auditor responses into a single
// PASS or FAIL decision with supporting metrics. The engine is pure and
// deterministic: the same responses and policy always produce the same result.
package consensus

import (
	"fmt"
	"log/slog"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// ReasonNoResponses is the sole failure reason for an empty panel.
const ReasonNoResponses = "No auditor responses provided"

// Engine applies a ConsensusPolicy.
type Engine struct {
	policy domain.ConsensusPolicy
	logger *slog.Logger
}

// NewEngine validates policy and returns an engine. A disagreement
// threshold outside [0,5] is rejected.
func NewEngine(policy domain.ConsensusPolicy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		policy: policy.Clone(),
		logger: slog.Default().With("component", "consensus"),
	}, nil
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() domain.ConsensusPolicy { return e.policy.Clone() }

// Calculate computes the consensus for responses.
//
// Failure reasons accumulate in a fixed order: blocking gates by severity,
// then the human review signal, then the score or approval shortfall that
// decided a FAIL. Blocking gates take priority over score, and score over
// approval; only the first failing of score and approval is reported.
func (e *Engine) Calculate(responses []domain.AuditorResponse) *domain.ConsensusResult {
	if len(responses) == 0 {
		return &domain.ConsensusResult{
			FinalDecision:       domain.DecisionFail,
			AgreementLevel:      0,
			RequiresHumanReview: true,
			FailureReasons:      []string{ReasonNoResponses},
		}
	}

	scores := make([]float64, 0, len(responses))
	auditorScores := make(map[string]float64, len(responses))
	counts := make(map[domain.Severity]int, len(domain.KnownSeverities))
	for _, s := range domain.KnownSeverities {
		counts[s] = 0
	}
	approvals := 0

	for _, r := range responses {
		scores = append(scores, r.Score())
		auditorScores[r.AuditorRole] = r.Score()
		if r.Passed() {
			approvals++
		}
		for _, issue := range r.BlockingIssues {
			counts[issue.Severity]++
		}
	}

	// Non-empty input makes the error impossible.
	weighted, _ := TrimmedMean(scores, e.policy.TrimPercentage)
	agreement := AgreementLevel(scores)
	approvalPct := float64(approvals) / float64(len(responses))

	result := &domain.ConsensusResult{
		WeightedAverage:    weighted,
		AgreementLevel:     agreement,
		ConsensusPass:      weighted >= e.policy.ScoreThreshold,
		ApprovalPass:       approvalPct >= e.policy.ApprovalThreshold,
		ApprovalPercentage: approvalPct,
		SeverityCounts:     counts,
		AuditorScores:      auditorScores,
		FailureReasons:     []string{},
	}

	blockingFail := false
	for _, sev := range domain.KnownSeverities {
		limit, gated := e.policy.BlockingGates[sev]
		if !gated {
			continue
		}
		if count := counts[sev]; count > limit {
			blockingFail = true
			result.FailureReasons = append(result.FailureReasons,
				fmt.Sprintf("Blocking issues: %d %s issue(s) exceed limit of %d", count, sev, limit))
		}
	}

	if cutoff := e.policy.ReviewCutoff(); agreement < cutoff {
		result.RequiresHumanReview = true
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("Low agreement between auditors (%.2f < %.2f): human review required", agreement, cutoff))
	}

	switch {
	case blockingFail:
		result.FinalDecision = domain.DecisionFail
	case !result.ConsensusPass:
		result.FinalDecision = domain.DecisionFail
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("Consensus score %.2f below threshold %.2f", weighted, e.policy.ScoreThreshold))
	case !result.ApprovalPass:
		result.FinalDecision = domain.DecisionFail
		result.FailureReasons = append(result.FailureReasons,
			fmt.Sprintf("Approval rate %.0f%% below threshold %.0f%%", approvalPct*100, e.policy.ApprovalThreshold*100))
	default:
		result.FinalDecision = domain.DecisionPass
	}

	e.logger.Debug("consensus calculated",
		"responses", len(responses),
		"weighted_average", weighted,
		"agreement", agreement,
		"decision", result.FinalDecision,
		"human_review", result.RequiresHumanReview)
	return result
}
