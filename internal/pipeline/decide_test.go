package pipeline_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
)

func passed(d domain.Decision) *domain.OrchestrationResult {
	return &domain.OrchestrationResult{Success: true, ConsensusResult: &domain.ConsensusResult{FinalDecision: d}}
}

func TestDecide(t *testing.T) {
	stages := []string{"vision", "prd"}
	aligned := []domain.AlignmentResult{{IsAligned: true}}
	misaligned := []domain.AlignmentResult{{IsAligned: false}}
	allPass := map[string]*domain.OrchestrationResult{"vision": passed(domain.DecisionPass), "prd": passed(domain.DecisionPass)}
	noConsensus := map[string]*domain.OrchestrationResult{"vision": passed(domain.DecisionPass), "prd": {Success: false}}

	tests := []struct {
		name      string
		iteration int
		results   map[string]*domain.OrchestrationResult
		alignment []domain.AlignmentResult
		want      pipeline.Step
		failed    []string
	}{
		{"all pass", 1, allPass, aligned, pipeline.StepSucceed, nil},
		{"all pass on last iteration", 3, allPass, aligned, pipeline.StepSucceed, nil},
		{"misaligned revises", 1, allPass, misaligned, pipeline.StepRevise, nil},
		{"misaligned at limit", 3, allPass, misaligned, pipeline.StepExhaust, nil},
		{"missing consensus", 1, noConsensus, aligned, pipeline.StepRevise, []string{"prd"}},
		{"missing stage result", 1, map[string]*domain.OrchestrationResult{"vision": passed(domain.DecisionPass)}, aligned, pipeline.StepRevise, []string{"prd"}},
		{"fail decision", 2, map[string]*domain.OrchestrationResult{"vision": passed(domain.DecisionFail), "prd": passed(domain.DecisionPass)}, nil, pipeline.StepRevise, []string{"vision"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := pipeline.Decide(tt.iteration, 3, stages, tt.results, tt.alignment)
			assert.Equal(t, tt.want, g.Step)
			assert.Equal(t, tt.failed, g.FailedStages)
		})
	}
}

func TestEffectiveRevisions(t *testing.T) {
	current := map[string]string{"a": "1", "b": "2"}
	changed, stages := pipeline.EffectiveRevisions(current, map[string]string{"a": "1", "b": "3", "c": "new"})
	assert.Equal(t, map[string]string{"b": "3", "c": "new"}, changed)
	assert.Equal(t, []string{"b", "c"}, stages)

	changed, stages = pipeline.EffectiveRevisions(current, nil)
	assert.Empty(t, changed)
	assert.Empty(t, stages)
}

// TestDecideTerminates: once the iteration count reaches the limit the
// decision is never to revise again.
func TestDecideTerminates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("no revision at or past the limit", prop.ForAll(
		func(maxIterations, extra int, stagePass, aligned bool) bool {
			results := map[string]*domain.OrchestrationResult{"s": passed(domain.DecisionFail)}
			if stagePass {
				results["s"] = passed(domain.DecisionPass)
			}
			g := pipeline.Decide(maxIterations+extra, maxIterations, []string{"s"}, results,
				[]domain.AlignmentResult{{IsAligned: aligned}})
			return g.Step != pipeline.StepRevise
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 5),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
