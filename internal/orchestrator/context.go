package orchestrator

import "context"

type runKey struct{}

type runInfo struct {
	runID     string
	iteration int
}

// WithRun tags ctx with the pipeline run and iteration so stage events can
// be correlated.
func WithRun(ctx context.Context, runID string, iteration int) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{runID: runID, iteration: iteration})
}

// RunIDFromContext returns the run ID set by WithRun, or "".
func RunIDFromContext(ctx context.Context) string {
	info, _ := ctx.Value(runKey{}).(runInfo)
	return info.runID
}

// IterationFromContext returns the iteration set by WithRun, or 0.
func IterationFromContext(ctx context.Context) int {
	info, _ := ctx.Value(runKey{}).(runInfo)
	return info.iteration
}
