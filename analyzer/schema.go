package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema is the contract every provider response must satisfy.
// Recognized keys only; everything is optional because the analyzer's output
// is best-effort and schema-soft.
const resultSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"documentType": {"type": "string"},
		"entities":     {"type": "array", "items": {"type": "string"}},
		"topics":       {"type": "array", "items": {"type": "string"}},
		"deadlines":    {"type": "array", "items": {"type": "string"}},
		"actionItems":  {"type": "array", "items": {"type": "string"}}
	}
}`

var compileOnce = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("result.json")
})

// validateResult checks raw provider output against the result schema.
func validateResult(raw []byte) error {
	schema, err := compileOnce()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("does not match result schema: %w", err)
	}
	return nil
}

// SchemaJSON returns the result schema for embedding into prompts.
func SchemaJSON() string {
	return resultSchema
}
