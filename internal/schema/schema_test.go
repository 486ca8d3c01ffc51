package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikCohenDev/consensus-council/internal/schema"
)

const personSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {"name": {"type": "string", "minLength": 1}, "age": {"type": "number"}}
}`

func TestSchemaValidate(t *testing.T) {
	s, err := schema.Compile("person", personSchema)
	require.NoError(t, err)

	require.NoError(t, s.Validate([]byte(`{"name":"a","age":3.5,"extra":true}`)))
	assert.ErrorIs(t, s.Validate([]byte(`{"age":3}`)), schema.ErrSchemaViolation)
	assert.ErrorIs(t, s.Validate([]byte(`{"name":""}`)), schema.ErrSchemaViolation)
	assert.ErrorIs(t, s.Validate([]byte(`{"name":"a","age":"old"}`)), schema.ErrSchemaViolation)
	assert.ErrorIs(t, s.Validate([]byte(`[1]`)), schema.ErrSchemaViolation)
	assert.ErrorIs(t, s.Validate([]byte(`{"name":`)), schema.ErrSchemaViolation)
}

func TestCompileRejectsBadSchema(t *testing.T) {
	_, err := schema.Compile("broken", `{"type": 12}`)
	require.Error(t, err)
	assert.Panics(t, func() { schema.MustCompile("broken", `{`) })
}
