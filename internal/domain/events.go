package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Event types emitted while auditing.
const (
	EventStageCompleted     = "audit.stage_completed"
	EventIterationCompleted = "pipeline.iteration_completed"
	EventPipelineCompleted  = "pipeline.completed"
)

// StageCompletedPayload summarizes one stage audit.
type StageCompletedPayload struct {
	Stage          string   `json:"stage"`
	Success        bool     `json:"success"`
	Decision       Decision `json:"decision,omitempty"`
	FailedAuditors []string `json:"failed_auditors,omitempty"`
	TotalTokens    int64    `json:"total_tokens"`
	TotalCost      float64  `json:"total_cost"`
	CacheHits      int      `json:"cache_hits"`
	DurationMs     int64    `json:"duration_ms"`
}

// NewStageCompletedPayload projects an orchestration result onto its event payload.
func NewStageCompletedPayload(r *OrchestrationResult) StageCompletedPayload {
	p := StageCompletedPayload{
		Stage:          r.Stage,
		Success:        r.Success,
		FailedAuditors: r.FailedAuditors,
		TotalTokens:    r.TotalTokens,
		TotalCost:      r.TotalCost,
		CacheHits:      r.CacheHits,
		DurationMs:     r.ExecutionTime.Milliseconds(),
	}
	if r.ConsensusResult != nil {
		p.Decision = r.ConsensusResult.FinalDecision
	}
	return p
}

// IterationCompletedPayload reports the gate outcome of one pipeline iteration.
type IterationCompletedPayload struct {
	Iteration     int      `json:"iteration"`
	StagesPassed  bool     `json:"stages_passed"`
	AllAligned    bool     `json:"all_aligned"`
	FailedStages  []string `json:"failed_stages,omitempty"`
	RevisedStages []string `json:"revised_stages,omitempty"`
	NextState     string   `json:"next_state"`
}

// PipelineCompletedPayload reports a terminal pipeline state.
type PipelineCompletedPayload struct {
	State       PipelineState `json:"state"`
	Success     bool          `json:"success"`
	Iterations  int           `json:"iterations"`
	TotalTokens int64         `json:"total_tokens"`
	TotalCost   float64       `json:"total_cost"`
}

// EventKey derives a stable idempotency key from the run and event coordinates.
func EventKey(runID, eventType string, parts ...any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", runID, eventType)
	for _, p := range parts {
		fmt.Fprintf(h, "|%v", p)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
