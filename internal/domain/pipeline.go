package domain

import "time"

// PipelineState is the terminal state of a pipeline run.
type PipelineState string

// Terminal pipeline states.
const (
	// PipelineSuccess means every stage passed and every document pair aligned.
	PipelineSuccess PipelineState = "SUCCESS"

	// PipelineExhausted means max_iterations was reached without success.
	PipelineExhausted PipelineState = "EXHAUSTED"

	// PipelineStoppedNoRevision means the revision strategy proposed no edits.
	PipelineStoppedNoRevision PipelineState = "STOPPED_NO_REVISION"
)

// PipelineSummary is the outcome of a pipeline run, reporting the results of
// the final iteration.
type PipelineSummary struct {
	RunID            string                          `json:"run_id"`
	Success          bool                            `json:"success"`
	State            PipelineState                   `json:"state"`
	Stages           []string                        `json:"stages"`
	StageResults     map[string]*OrchestrationResult `json:"stage_results"`
	AlignmentResults []AlignmentResult               `json:"alignment_results"`
	Iterations       int                             `json:"iterations"`
	MaxIterations    int                             `json:"max_iterations"`
	Documents        map[string]string               `json:"documents"`
	StartedAt        time.Time                       `json:"started_at"`
	FinishedAt       time.Time                       `json:"finished_at"`
}

// TotalCost sums the cost of the final iteration's stage audits.
func (s *PipelineSummary) TotalCost() float64 {
	var total float64
	for _, r := range s.StageResults {
		if r != nil {
			total += r.TotalCost
		}
	}
	return total
}

// TotalTokens sums token usage of the final iteration's stage audits.
func (s *PipelineSummary) TotalTokens() int64 {
	var total int64
	for _, r := range s.StageResults {
		if r != nil {
			total += r.TotalTokens
		}
	}
	return total
}
