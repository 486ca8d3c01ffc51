package consensus_test

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ErikCohenDev/consensus-council/internal/consensus"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// TestTrimmedMeanBounds: the trimmed mean lies within the sample range.
func TestTrimmedMeanBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("trimmed mean within [min, max]", prop.ForAll(
		func(scores []float64, trim float64) bool {
			if len(scores) == 0 {
				return true
			}
			got, err := consensus.TrimmedMean(scores, trim)
			if err != nil {
				return false
			}
			return got >= slices.Min(scores) && got <= slices.Max(scores)
		},
		gen.SliceOf(gen.Float64Range(-1000, 1000)),
		gen.Float64Range(0, 0.5),
	))

	properties.TestingRun(t)
}

// TestAgreementBounds: agreement is in [0,1] and identical scores give 1.
func TestAgreementBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("agreement within [0,1]", prop.ForAll(
		func(scores []float64) bool {
			a := consensus.AgreementLevel(scores)
			return a >= 0 && a <= 1
		},
		gen.SliceOf(gen.Float64Range(0, 5)),
	))

	properties.Property("identical scores agree fully", prop.ForAll(
		func(score float64, n int) bool {
			scores := make([]float64, n)
			for i := range scores {
				scores[i] = score
			}
			return consensus.AgreementLevel(scores) == 1.0
		},
		gen.Float64Range(0, 5),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// TestThresholdMonotonicity: raising the score threshold never turns FAIL into PASS.
func TestThresholdMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("higher threshold never flips FAIL to PASS", prop.ForAll(
		func(scores []float64, a, b float64) bool {
			low, high := min(a, b), max(a, b)

			responses := make([]domain.AuditorResponse, len(scores))
			for i, s := range scores {
				responses[i] = domain.AuditorResponse{
					AuditorRole:       "r",
					OverallAssessment: domain.OverallAssessment{AverageScore: s, OverallPass: i%3 != 0},
				}
			}

			decide := func(threshold float64) domain.Decision {
				p := domain.DefaultConsensusPolicy()
				p.ScoreThreshold = threshold
				e, err := consensus.NewEngine(p)
				if err != nil {
					t.Fatalf("engine: %v", err)
				}
				return e.Calculate(responses).FinalDecision
			}

			if decide(low) == domain.DecisionFail {
				return decide(high) == domain.DecisionFail
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 5)),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
	))

	properties.TestingRun(t)
}
