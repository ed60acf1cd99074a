package explain

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/errmate/errmate/internal/llm"
)

// Schema is the JSON schema of a structured explanation response.
// It is strict-mode compatible: every property is required and no extras are allowed.
var Schema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["outOfContext", "message", "explanation", "resources"],
	"properties": {
		"outOfContext": {"type": "boolean"},
		"message": {"type": "string"},
		"explanation": {"type": "string"},
		"resources": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["title", "url", "description"],
				"properties": {
					"title": {"type": "string"},
					"url": {"type": "string"},
					"description": {"type": "string"}
				}
			}
		}
	}
}`)

// ResponseFormat is the response_format sent when structured output is enabled.
func ResponseFormat() *llm.ResponseFormat {
	return &llm.ResponseFormat{
		Type: "json_schema",
		JSONSchema: &llm.JSONSchema{
			Name:   "error_explanation",
			Strict: true,
			Schema: Schema,
		},
	}
}

var (
	compiledOnce   sync.Once
	compiledSchema *gojsonschema.Schema
	compileErr     error
)

func schema() (*gojsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(Schema))
	})
	return compiledSchema, compileErr
}

// validateDocument checks doc against Schema.
func validateDocument(doc []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("document does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}
