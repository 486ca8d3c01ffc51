package auditor

import (
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	"github.com/ErikCohenDev/consensus-council/internal/schema"
)

// responseSchema is the wire contract every auditor completion must satisfy.
// Unknown properties are allowed and ignored.
const responseSchema = `{
	"type": "object",
	"required": ["auditor_role", "overall_assessment"],
	"properties": {
		"auditor_role": {"type": "string", "minLength": 1},
		"overall_assessment": {
			"type": "object",
			"required": ["average_score"],
			"properties": {
				"summary": {"type": ["string", "null"]},
				"overall_pass": {"type": "boolean"},
				"average_score": {"type": "number"},
				"top_risks": {"type": ["array", "null"], "items": {"type": "string"}},
				"quick_wins": {"type": ["array", "null"], "items": {"type": "string"}}
			}
		},
		"blocking_issues": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"severity": {"type": "string"},
					"description": {"type": "string"}
				}
			}
		}
	}
}`

var auditorSchema = schema.MustCompile("auditor-response", responseSchema)

// ParseResponse repairs, schema-checks and decodes a completion. It returns
// the normalized JSON that is safe to cache alongside the typed response.
func ParseResponse(content string) (*domain.AuditorResponse, []byte, error) {
	repaired := []byte(llm.RepairJSON(content))
	if err := auditorSchema.Validate(repaired); err != nil {
		return nil, nil, err
	}
	resp, err := domain.ParseAuditorResponse(repaired)
	if err != nil {
		return nil, nil, err
	}
	return resp, repaired, nil
}
