package consensus

import (
	"errors"
	"math"
	"slices"
)

// ErrNoScores is returned by TrimmedMean for an empty sample.
var ErrNoScores = errors.New("no scores to aggregate")

const (
	// minTrimSample is the smallest sample that gets trimmed.
	minTrimSample = 5

	// disagreementSaturation is the coefficient of variation treated as
	// complete disagreement.
	disagreementSaturation = 0.5
)

// TrimmedMean averages scores after dropping max(1, floor(n*trim)) values
// from each end. Samples smaller than five use the plain mean, as does any
// trim that would remove every value. The result always lies within
// [min(scores), max(scores)].
func TrimmedMean(scores []float64, trim float64) (float64, error) {
	n := len(scores)
	if n == 0 {
		return 0, ErrNoScores
	}
	lo, hi := slices.Min(scores), slices.Max(scores)
	if n < minTrimSample {
		return clamp(mean(scores), lo, hi), nil
	}

	trimCount := max(1, int(math.Floor(float64(n)*trim)))
	if 2*trimCount >= n {
		return clamp(mean(scores), lo, hi), nil
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	return clamp(mean(sorted[trimCount:n-trimCount]), lo, hi), nil
}

// AgreementLevel maps the coefficient of variation onto [0,1], where 1 is
// identical scores and a CV of 0.5 or more is 0. Zero or one score is
// trivially in agreement. A zero mean yields 1 only if every score is zero.
func AgreementLevel(scores []float64) float64 {
	if len(scores) <= 1 || allEqual(scores) {
		return 1.0
	}

	// CV is scale invariant; normalizing keeps the sums finite.
	scale := 0.0
	for _, s := range scores {
		scale = math.Max(scale, math.Abs(s))
	}
	norm := make([]float64, len(scores))
	for i, s := range scores {
		norm[i] = s / scale
	}

	m := mean(norm)
	if m == 0 {
		return 0.0
	}

	cv := stdev(norm, m) / math.Abs(m)
	if math.IsNaN(cv) {
		return 0.0
	}
	return clamp(1-cv/disagreementSaturation, 0, 1)
}

func allEqual(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation (n-1 denominator).
func stdev(xs []float64, m float64) float64 {
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
