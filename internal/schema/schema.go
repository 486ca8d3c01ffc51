// Package schema compiles the JSON Schemas that guard LLM output at the
// boundary, before typed decoding.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const baseURL = "https://council.schemas.local/"

// ErrSchemaViolation wraps every validation failure from Validate.
var ErrSchemaViolation = errors.New("response does not match schema")

// Schema is a compiled Draft 2020-12 schema.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile parses src under name.
func Compile(name, src string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := baseURL + name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for package-level schemas known to be valid.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate decodes data and checks it against the schema.
func (s *Schema) Validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %s: invalid JSON: %v", ErrSchemaViolation, s.name, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, s.name, err)
	}
	return nil
}
