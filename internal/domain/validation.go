package domain

import (
	"maps"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// CloneDocuments copies a stage-to-content map so callers can mutate the
// result without aliasing the original. Returns nil for nil input.
func CloneDocuments(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	maps.Copy(result, m)
	return result
}

// cloneGates copies a blocking gate map.
func cloneGates(m map[Severity]int) map[Severity]int {
	if m == nil {
		return nil
	}
	result := make(map[Severity]int, len(m))
	maps.Copy(result, m)
	return result
}
