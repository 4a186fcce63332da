package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/scenark/scenark/pkg/schema"
)

// scenarioSchemaJSON is the JSON Schema for ScenarioDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const scenarioSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://scenark.dev/schemas/scenario.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1,
      "pattern": "^[a-z0-9][a-z0-9-]*$"
    },
    "description": { "type": "string" },
    "required_integrations": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 },
      "uniqueItems": true
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "integration", "provider_action"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1,
          "pattern": "^[a-z0-9][a-z0-9-]*$"
        },
        "integration": { "type": "string", "minLength": 1 },
        "action_name": { "type": "string" },
        "provider_action": {
          "type": "string",
          "pattern": "^[a-z0-9_]+\\.[a-z0-9_]+$"
        },
        "payload": { "type": "object" },
        "depends_on": {
          "type": "array",
          "items": { "type": "string" },
          "uniqueItems": true
        },
        "resource_type": { "type": "string" },
        "resource_id_path": { "type": "string" },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// SchemaValidator validates scenario definitions against the embedded JSON
// Schema (Draft 2020-12). Safe for concurrent use.
type SchemaValidator struct {
	scenarioSchema *jsonschema.Schema
}

// NewSchemaValidator compiles the scenario schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(scenarioSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal scenario schema: %w", err)
	}
	if err := c.AddResource("https://scenark.dev/schemas/scenario.json", doc); err != nil {
		return nil, fmt.Errorf("add scenario schema resource: %w", err)
	}

	compiled, err := c.Compile("https://scenark.dev/schemas/scenario.json")
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}

	return &SchemaValidator{scenarioSchema: compiled}, nil
}

// ValidateDefinition checks a scenario definition against the schema.
func (v *SchemaValidator) ValidateDefinition(def *schema.ScenarioDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "scenario definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize scenario definition").WithCause(err)
	}

	if err := v.scenarioSchema.Validate(doc); err != nil {
		return toScenarkError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toScenarkError converts a jsonschema.ValidationError into a ScenarkError
// with the leaf violations collected for readable reporting.
func toScenarkError(err error) *schema.ScenarkError {
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

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
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
