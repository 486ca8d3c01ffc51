package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

func TestConsensusPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.ConsensusPolicy)
		wantErr bool
	}{
		{"defaults", func(*domain.ConsensusPolicy) {}, false},
		{"disagreement at upper bound", func(p *domain.ConsensusPolicy) { p.DisagreementThreshold = 5 }, false},
		{"disagreement above scale", func(p *domain.ConsensusPolicy) { p.DisagreementThreshold = 5.5 }, true},
		{"negative disagreement", func(p *domain.ConsensusPolicy) { p.DisagreementThreshold = -1 }, true},
		{"approval above one", func(p *domain.ConsensusPolicy) { p.ApprovalThreshold = 1.2 }, true},
		{"trim above half", func(p *domain.ConsensusPolicy) { p.TrimPercentage = 0.6 }, true},
		{"negative gate", func(p *domain.ConsensusPolicy) { p.BlockingGates[domain.SeverityLow] = -1 }, true},
		{"nan score threshold", func(p *domain.ConsensusPolicy) { p.ScoreThreshold = math.NaN() }, true},
		{"nil gates", func(p *domain.ConsensusPolicy) { p.BlockingGates = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.DefaultConsensusPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidPolicy)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConsensusPolicyReviewCutoff(t *testing.T) {
	p := domain.DefaultConsensusPolicy()
	assert.InDelta(t, 0.8, p.ReviewCutoff(), 1e-9)

	p.DisagreementThreshold = 0
	assert.InDelta(t, 1.0, p.ReviewCutoff(), 1e-9)
}

func TestConsensusPolicyCloneDoesNotAlias(t *testing.T) {
	p := domain.DefaultConsensusPolicy()
	c := p.Clone()
	c.BlockingGates[domain.SeverityCritical] = 10
	assert.Equal(t, 0, p.BlockingGates[domain.SeverityCritical])
}

func TestOrchestrationResultPassed(t *testing.T) {
	var nilResult *domain.OrchestrationResult
	assert.False(t, nilResult.Passed())
	assert.False(t, (&domain.OrchestrationResult{Success: false}).Passed())
	assert.False(t, (&domain.OrchestrationResult{
		Success:         true,
		ConsensusResult: &domain.ConsensusResult{FinalDecision: domain.DecisionFail},
	}).Passed())
	assert.True(t, (&domain.OrchestrationResult{
		Success:         true,
		ConsensusResult: &domain.ConsensusResult{FinalDecision: domain.DecisionPass},
	}).Passed())
}

func TestOrderedDocuments(t *testing.T) {
	docs := map[string]string{"prd": "b", "vision": "a"}
	got := domain.OrderedDocuments([]string{"vision", "missing", "prd"}, docs)
	assert.Equal(t, []domain.StageDocument{{Stage: "vision", Content: "a"}, {Stage: "prd", Content: "b"}}, got)
}

func TestCloneDocuments(t *testing.T) {
	assert.Nil(t, domain.CloneDocuments(nil))
	src := map[string]string{"a": "1"}
	c := domain.CloneDocuments(src)
	c["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
