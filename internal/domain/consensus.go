package domain

import (
	"fmt"
	"math"
)

// Decision is the final verdict of a consensus calculation.
type Decision string

// Consensus decisions.
const (
	DecisionPass Decision = "PASS"
	DecisionFail Decision = "FAIL"
)

// Default consensus thresholds.
const (
	DefaultScoreThreshold        = 3.8
	DefaultApprovalThreshold     = 0.67
	DefaultTrimPercentage        = 0.1
	DefaultDisagreementThreshold = 1.0

	// MaxDisagreementThreshold is the top of the 0-5 disagreement tolerance scale.
	MaxDisagreementThreshold = 5.0
)

// DefaultBlockingGates returns the default per-severity issue limits.
// Severities absent from the map are never blocking.
func DefaultBlockingGates() map[Severity]int {
	return map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     2,
	}
}

// ConsensusPolicy configures how auditor responses are combined.
type ConsensusPolicy struct {
	// ScoreThreshold is the minimum trimmed mean required to pass.
	ScoreThreshold float64 `json:"score_threshold" validate:"min=0"`

	// ApprovalThreshold is the minimum fraction of overall_pass=true responses.
	ApprovalThreshold float64 `json:"approval_threshold" validate:"min=0,max=1"`

	// TrimPercentage is the fraction trimmed from each end for samples of 5 or more.
	TrimPercentage float64 `json:"trim_percentage" validate:"min=0,max=0.5"`

	// DisagreementThreshold is a 0-5 tolerance converted to the agreement
	// scale as 1 - threshold/5. Agreement below that requires human review.
	DisagreementThreshold float64 `json:"disagreement_threshold" validate:"min=0,max=5"`

	// BlockingGates maps severity to the maximum tolerated issue count.
	BlockingGates map[Severity]int `json:"blocking_gates" validate:"omitempty,dive,min=0"`
}

// DefaultConsensusPolicy returns the stock thresholds.
func DefaultConsensusPolicy() ConsensusPolicy {
	return ConsensusPolicy{
		ScoreThreshold:        DefaultScoreThreshold,
		ApprovalThreshold:     DefaultApprovalThreshold,
		TrimPercentage:        DefaultTrimPercentage,
		DisagreementThreshold: DefaultDisagreementThreshold,
		BlockingGates:         DefaultBlockingGates(),
	}
}

// Validate rejects out-of-range thresholds, including a disagreement
// threshold outside [0,5] which would push the review cutoff off the
// agreement scale.
func (p ConsensusPolicy) Validate() error {
	for _, v := range []float64{p.ScoreThreshold, p.ApprovalThreshold, p.TrimPercentage, p.DisagreementThreshold} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: thresholds must be finite", ErrInvalidPolicy)
		}
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}

// ReviewCutoff returns the agreement level below which human review is required.
func (p ConsensusPolicy) ReviewCutoff() float64 {
	return 1 - p.DisagreementThreshold/MaxDisagreementThreshold
}

// Clone returns a deep copy of the policy.
func (p ConsensusPolicy) Clone() ConsensusPolicy {
	p.BlockingGates = cloneGates(p.BlockingGates)
	return p
}

// ConsensusResult is the immutable outcome of one consensus calculation.
type ConsensusResult struct {
	WeightedAverage     float64            `json:"weighted_average"`
	AgreementLevel      float64            `json:"agreement_level"`
	ConsensusPass       bool               `json:"consensus_pass"`
	ApprovalPass        bool               `json:"approval_pass"`
	ApprovalPercentage  float64            `json:"approval_percentage"`
	FinalDecision       Decision           `json:"final_decision"`
	RequiresHumanReview bool               `json:"requires_human_review"`
	FailureReasons      []string           `json:"failure_reasons"`
	SeverityCounts      map[Severity]int   `json:"severity_counts,omitempty"`
	AuditorScores       map[string]float64 `json:"auditor_scores,omitempty"`
}

// Passed reports whether the final decision is PASS.
func (r *ConsensusResult) Passed() bool { return r != nil && r.FinalDecision == DecisionPass }
