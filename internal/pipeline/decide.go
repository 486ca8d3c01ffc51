package pipeline

import (
	"maps"
	"slices"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// Step is the pipeline's next move after an iteration's gate check.
type Step int

const (
	// StepRevise asks the revision strategy for new content.
	StepRevise Step = iota
	// StepSucceed ends the run with SUCCESS.
	StepSucceed
	// StepExhaust ends the run with EXHAUSTED.
	StepExhaust
)

// Gate is the outcome of one iteration's checks.
type Gate struct {
	StagesPassed bool
	AllAligned   bool
	FailedStages []string
	Step         Step
}

// Decide evaluates an iteration. Every stage must have a consensus with a
// PASS decision and every alignment result must be aligned; otherwise the
// run revises unless iteration has reached maxIterations.
func Decide(iteration, maxIterations int, stages []string, stageResults map[string]*domain.OrchestrationResult, alignment []domain.AlignmentResult) Gate {
	g := Gate{StagesPassed: true, AllAligned: true}
	for _, stage := range stages {
		if !stageResults[stage].Passed() {
			g.StagesPassed = false
			g.FailedStages = append(g.FailedStages, stage)
		}
	}
	for _, a := range alignment {
		if !a.IsAligned {
			g.AllAligned = false
			break
		}
	}

	switch {
	case g.StagesPassed && g.AllAligned:
		g.Step = StepSucceed
	case iteration >= maxIterations:
		g.Step = StepExhaust
	default:
		g.Step = StepRevise
	}
	return g
}

// EffectiveRevisions drops proposals that would leave a document unchanged
// and returns the remaining ones with their stages in sorted order.
func EffectiveRevisions(current, proposed map[string]string) (map[string]string, []string) {
	changed := make(map[string]string, len(proposed))
	for stage, content := range proposed {
		if old, ok := current[stage]; ok && old == content {
			continue
		}
		changed[stage] = content
	}
	return changed, slices.Sorted(maps.Keys(changed))
}
