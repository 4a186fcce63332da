// Package validation checks scenario definitions before they are admitted to
// the catalog: JSON Schema shape validation, semantic checks and dependency
// graph analysis.
package validation

import (
	"github.com/scenark/scenark/pkg/schema"
)

// Validator runs the full validation pipeline over a scenario definition.
type Validator struct {
	schemas *SchemaValidator
}

// NewValidator creates a Validator with the scenario schema pre-compiled.
func NewValidator() (*Validator, error) {
	sv, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Validator{schemas: sv}, nil
}

// Validate returns every issue found in the definition. Schema violations
// short-circuit: semantic and graph analysis assume a shape-valid document.
func (v *Validator) Validate(def *schema.ScenarioDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := v.schemas.ValidateDefinition(def); err != nil {
		if serr, ok := err.(*schema.ScenarkError); ok {
			result.AddError("$", serr.Code, serr.Message)
		} else {
			result.AddError("$", schema.ErrCodeValidation, err.Error())
		}
		return result
	}

	result.Merge(validateSemantics(def))
	result.Merge(validateDAG(def))
	return result
}
