// Package domain defines the auditor response contract, consensus results,
// and pipeline aggregates shared by every layer of the council.
//
// Auditor responses arrive as JSON from LLM calls and are validated at the
// boundary, so consensus math never sees a missing role or a non-numeric
// score. All result types are plain data and safe to serialize as Temporal
// payloads or persist as JSON.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Response validation errors.
var (
	// ErrMissingAuditorRole is returned when a response has no auditor_role.
	ErrMissingAuditorRole = errors.New("auditor_role is required")

	// ErrMissingAverageScore is returned when overall_assessment.average_score is absent.
	ErrMissingAverageScore = errors.New("overall_assessment.average_score is required")

	// ErrInvalidAverageScore is returned when average_score is NaN or infinite.
	ErrInvalidAverageScore = errors.New("overall_assessment.average_score must be finite")

	// ErrNotAnObject is returned when the response body is valid JSON but not an object.
	ErrNotAnObject = errors.New("response is not a JSON object")
)

// Severity classifies a blocking issue raised by an auditor.
type Severity string

// Recognized blocking issue severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// KnownSeverities lists gated severities from most to least severe.
// Iteration order over this slice is the order failure reasons are reported in.
var KnownSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsKnown reports whether the severity participates in blocking gates.
func (s Severity) IsKnown() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// BlockingIssue is a single issue an auditor considers serious enough to gate on.
type BlockingIssue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// OverallAssessment is the auditor's summary verdict.
type OverallAssessment struct {
	Summary      string   `json:"summary"`
	OverallPass  bool     `json:"overall_pass"`
	AverageScore float64  `json:"average_score"`
	TopRisks     []string `json:"top_risks,omitempty"`
	QuickWins    []string `json:"quick_wins,omitempty"`
}

// AuditorResponse is one auditor's structured assessment of a document.
// Extra fields in the LLM output are ignored.
type AuditorResponse struct {
	AuditorRole       string            `json:"auditor_role" validate:"required"`
	OverallAssessment OverallAssessment `json:"overall_assessment"`
	BlockingIssues    []BlockingIssue   `json:"blocking_issues"`
}

// rawAuditorResponse mirrors AuditorResponse with pointer fields so that
// absent required keys can be told apart from zero values.
type rawAuditorResponse struct {
	AuditorRole       *string `json:"auditor_role"`
	OverallAssessment *struct {
		Summary      string   `json:"summary"`
		OverallPass  bool     `json:"overall_pass"`
		AverageScore *float64 `json:"average_score"`
		TopRisks     []string `json:"top_risks"`
		QuickWins    []string `json:"quick_wins"`
	} `json:"overall_assessment"`
	BlockingIssues []BlockingIssue `json:"blocking_issues"`
}

// ParseAuditorResponse decodes and validates an auditor response body.
// It rejects non-object JSON, a missing or blank auditor_role, and a
// missing or non-finite average_score. Severities are normalized to lower case.
func ParseAuditorResponse(data []byte) (*AuditorResponse, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		// Valid JSON arrays, strings and numbers are still the wrong shape.
		if json.Valid([]byte(trimmed)) {
			return nil, ErrNotAnObject
		}
	}

	var raw rawAuditorResponse
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("decode auditor response: %w", err)
	}

	if raw.AuditorRole == nil || strings.TrimSpace(*raw.AuditorRole) == "" {
		return nil, ErrMissingAuditorRole
	}
	if raw.OverallAssessment == nil || raw.OverallAssessment.AverageScore == nil {
		return nil, ErrMissingAverageScore
	}
	score := *raw.OverallAssessment.AverageScore
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, ErrInvalidAverageScore
	}

	resp := &AuditorResponse{
		AuditorRole: strings.TrimSpace(*raw.AuditorRole),
		OverallAssessment: OverallAssessment{
			Summary:      raw.OverallAssessment.Summary,
			OverallPass:  raw.OverallAssessment.OverallPass,
			AverageScore: score,
			TopRisks:     raw.OverallAssessment.TopRisks,
			QuickWins:    raw.OverallAssessment.QuickWins,
		},
		BlockingIssues: make([]BlockingIssue, 0, len(raw.BlockingIssues)),
	}
	for _, issue := range raw.BlockingIssues {
		issue.Severity = Severity(strings.ToLower(strings.TrimSpace(string(issue.Severity))))
		resp.BlockingIssues = append(resp.BlockingIssues, issue)
	}

	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Validate checks the struct-level invariants of an accepted response.
func (r *AuditorResponse) Validate() error { return validate.Struct(r) }

// Score returns the auditor's average score.
func (r *AuditorResponse) Score() float64 { return r.OverallAssessment.AverageScore }

// Passed reports the auditor's overall_pass flag.
func (r *AuditorResponse) Passed() bool { return r.OverallAssessment.OverallPass }
