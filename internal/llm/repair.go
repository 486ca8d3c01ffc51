package llm

import (
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// RepairJSON fixes the formatting mistakes models commonly make around a
// JSON object: markdown code fences, surrounding prose and trailing commas.
// It only removes characters, so it cannot invent fields. Top-level arrays
// are left as arrays.
func RepairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "[") {
		return trailingComma.ReplaceAllString(s, "$1")
	}
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}

	return trailingComma.ReplaceAllString(s, "$1")
}
