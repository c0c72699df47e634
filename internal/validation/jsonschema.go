// Package validation guards the pipeline against out-of-contract generator
// output. Every LLM-produced document is validated against an embedded JSON
// Schema before the pipeline accepts it; a schema violation is a Validation
// error and routes the stage to its deterministic fallback.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pageforge/pageforge/pkg/schema"
)

// briefSchemaJSON is the JSON Schema for normalized Brief output.
const briefSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pageforge.dev/schemas/brief.json",
  "type": "object",
  "required": ["industry", "business_type", "tone", "target_audience", "primary_cta", "sections_requested"],
  "properties": {
    "industry": { "type": "string", "minLength": 1 },
    "business_type": { "type": "string", "minLength": 1 },
    "tone": { "type": "string", "minLength": 1 },
    "key_services": {
      "type": "array",
      "items": { "type": "string" }
    },
    "target_audience": { "type": "string", "minLength": 1 },
    "primary_cta": { "type": "string", "minLength": 1 },
    "sections_requested": {
      "type": "array",
      "minItems": 1,
      "items": { "type": "string", "minLength": 1 }
    },
    "notes": { "type": "string" }
  },
  "additionalProperties": false
}`

// signalsSchemaJSON is the JSON Schema for one reference's extracted style
// signals. Tokens are loose maps; the merger enforces role completeness.
const signalsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pageforge.dev/schemas/signals.json",
  "type": "object",
  "properties": {
    "colors": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["hex"],
        "properties": {
          "hex": { "type": "string", "pattern": "^#[0-9a-fA-F]{6}$" },
          "confidence": { "type": "number", "minimum": 0, "maximum": 1 }
        }
      }
    },
    "typography": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["family", "size"],
        "properties": {
          "family": { "type": "string", "minLength": 1 },
          "size": { "type": "number", "exclusiveMinimum": 0 },
          "weight": { "type": "string" },
          "line_height": { "type": "number" },
          "confidence": { "type": "number", "minimum": 0, "maximum": 1 }
        }
      }
    },
    "spacing": {
      "type": "array",
      "items": { "type": "number", "minimum": 0 }
    },
    "radius": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["px"],
        "properties": {
          "px": { "type": "number", "minimum": 0 },
          "confidence": { "type": "number", "minimum": 0, "maximum": 1 }
        }
      }
    },
    "components": { "type": "object" }
  },
  "additionalProperties": true
}`

// pageSpecSchemaJSON is the JSON Schema for planner output.
const pageSpecSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pageforge.dev/schemas/pagespec.json",
  "type": "object",
  "required": ["page_name", "sections"],
  "properties": {
    "page_name": { "type": "string", "minLength": 1 },
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": { "type": "string", "minLength": 1 },
          "props": { "type": "object" }
        },
        "additionalProperties": false
      }
    },
    "assets": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    }
  },
  "additionalProperties": false
}`

// LLMValidator validates generator output documents against the embedded
// schemas. Safe for concurrent use: all schemas are compiled up front.
type LLMValidator struct {
	brief    *jsonschema.Schema
	signals  *jsonschema.Schema
	pageSpec *jsonschema.Schema
}

// NewLLMValidator compiles the embedded schemas.
func NewLLMValidator() (*LLMValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	compile := func(id, raw string) (*jsonschema.Schema, error) {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", id, err)
		}
		if err := c.AddResource(id, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", id, err)
		}
		return c.Compile(id)
	}

	brief, err := compile("https://pageforge.dev/schemas/brief.json", briefSchemaJSON)
	if err != nil {
		return nil, err
	}
	signals, err := compile("https://pageforge.dev/schemas/signals.json", signalsSchemaJSON)
	if err != nil {
		return nil, err
	}
	pageSpec, err := compile("https://pageforge.dev/schemas/pagespec.json", pageSpecSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &LLMValidator{brief: brief, signals: signals, pageSpec: pageSpec}, nil
}

// ValidateBrief checks a decoded brief document.
func (v *LLMValidator) ValidateBrief(raw []byte) error {
	return v.validate(v.brief, raw, "brief")
}

// ValidateSignals checks one reference's extracted style signals.
func (v *LLMValidator) ValidateSignals(raw []byte) error {
	return v.validate(v.signals, raw, "signals")
}

// ValidatePageSpec checks a planned page specification.
func (v *LLMValidator) ValidatePageSpec(raw []byte) error {
	return v.validate(v.pageSpec, raw, "page spec")
}

func (v *LLMValidator) validate(s *jsonschema.Schema, raw []byte, what string) error {
	if len(raw) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "empty %s document", what)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s is not valid JSON: %s", what, err.Error()).WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toForgeError(err)
	}
	return nil
}

// Decode validates raw JSON against the given validate func and unmarshals
// it into out on success.
func Decode(raw []byte, validate func([]byte) error, out any) error {
	if err := validate(raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "decode validated document").WithCause(err)
	}
	return nil
}

// toForgeError converts a jsonschema.ValidationError into a ForgeError with
// the leaf violations collected for actionable reporting.
func toForgeError(err error) *schema.ForgeError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
