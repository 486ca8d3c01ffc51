package domain

import "time"

// OrchestrationResult aggregates one stage audit.
//
// ConsensusResult is nil whenever FailedAuditors is non-empty or the stage
// could not be audited at all. Consumers distinguish "no consensus" from a
// FAIL decision by checking ConsensusResult for nil.
type OrchestrationResult struct {
	Stage            string            `json:"stage"`
	Success          bool              `json:"success"`
	AuditorResponses []AuditorResponse `json:"auditor_responses"`
	FailedAuditors   []string          `json:"failed_auditors"`
	ConsensusResult  *ConsensusResult  `json:"consensus_result"`
	ExecutionTime    time.Duration     `json:"execution_time"`
	TotalTokens      int64             `json:"total_tokens"`
	TotalCost        float64           `json:"total_cost"`
	CacheHits        int               `json:"cache_hits"`

	// Error describes why the stage could not be audited, for configuration
	// failures such as a missing document or an empty auditor panel.
	Error string `json:"error,omitempty"`
}

// Passed reports whether the stage produced a consensus with a PASS decision.
func (r *OrchestrationResult) Passed() bool {
	return r != nil && r.ConsensusResult.Passed()
}

// AlignmentResult describes consistency between two adjacent stage documents.
type AlignmentResult struct {
	SourceStage    string   `json:"source_stage"`
	TargetStage    string   `json:"target_stage"`
	IsAligned      bool     `json:"is_aligned"`
	AlignmentScore float64  `json:"alignment_score"`
	Misalignments  []string `json:"misalignments"`
}

// StageDocument pairs a stage name with its current content, preserving
// pipeline order where a map would not.
type StageDocument struct {
	Stage   string `json:"stage"`
	Content string `json:"content"`
}

// OrderedDocuments projects documents onto the stage order. Stages with no
// document are skipped.
func OrderedDocuments(stages []string, documents map[string]string) []StageDocument {
	out := make([]StageDocument, 0, len(stages))
	for _, stage := range stages {
		content, ok := documents[stage]
		if !ok {
			continue
		}
		out = append(out, StageDocument{Stage: stage, Content: content})
	}
	return out
}
