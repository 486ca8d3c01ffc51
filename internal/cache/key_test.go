package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ErikCohenDev/consensus-council/internal/cache"
)

func TestKeyDeterministic(t *testing.T) {
	a := cache.Key("gpt-4o", "template", "prompt", "doc")
	b := cache.Key("gpt-4o", "template", "prompt", "doc")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", a)
}

// TestKeyDistinguishesFields verifies that moving bytes across field
// boundaries or changing any single field produces a different key.
func TestKeyDistinguishesFields(t *testing.T) {
	base := cache.Key("m", "t", "p", "d")
	variants := map[string]string{
		"model":        cache.Key("m2", "t", "p", "d"),
		"template":     cache.Key("m", "t2", "p", "d"),
		"prompt":       cache.Key("m", "t", "p2", "d"),
		"document":     cache.Key("m", "t", "p", "d2"),
		"shift m|t":    cache.Key("mt", "", "p", "d"),
		"shift t|p":    cache.Key("m", "tp", "", "d"),
		"shift p|d":    cache.Key("m", "t", "", "pd"),
		"empty fields": cache.Key("", "", "", ""),
	}
	seen := map[string]string{base: "base"}
	for name, k := range variants {
		prev, dup := seen[k]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[k] = name
	}
}
