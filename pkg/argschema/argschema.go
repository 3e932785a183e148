// Package argschema compiles and applies the JSON Schemas that describe
// continuation arguments. A schema is attached to a branch so callers can
// discover the argument shape and so submitted arguments are rejected
// before any contract code runs.
package argschema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/22388o/sapio/pkg/canonical"
)

// Schema is a compiled JSON Schema (draft 2020-12) plus its raw source,
// kept so the schema can be re-served verbatim in introspection output.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Compile parses and compiles a schema document. The resource URL is
// derived from the document's canonical hash, so identical schemas
// compile to the same identity.
func Compile(raw []byte) (*Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("argschema: empty schema document")
	}
	sum, err := canonical.HashBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("argschema: %w", err)
	}
	url := "mem://argschema/" + sum

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("argschema: add resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("argschema: compile: %w", err)
	}

	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return &Schema{raw: cp, compiled: compiled}, nil
}

// MustCompile is Compile for schemas fixed at program start.
func MustCompile(raw []byte) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema source as provided to Compile.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks an already-decoded document against the schema.
func (s *Schema) Validate(v any) error {
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("argschema: %w", err)
	}
	return nil
}

// ValidateJSON decodes data and checks it against the schema. Numbers are
// decoded with json.Number so integer bounds are checked exactly.
func (s *Schema) ValidateJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("argschema: decode: %w", err)
	}
	return s.Validate(v)
}
