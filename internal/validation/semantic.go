package validation

import (
	"fmt"

	"github.com/scenark/scenark/pkg/schema"
)

// validateSemantics performs the structural checks JSON Schema cannot
// express: duplicate ids, dependency references and declaration order.
func validateSemantics(def *schema.ScenarioDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	declared := make(map[string]int, len(def.Steps)) // step id -> declaration index
	for i, step := range def.Steps {
		if prev, exists := declared[step.ID]; exists {
			result.AddError(fmt.Sprintf("steps[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q (first declared at index %d)", step.ID, prev))
			continue
		}
		declared[step.ID] = i
	}

	integrations := make(map[string]bool, len(def.RequiredIntegrations))
	for _, integration := range def.RequiredIntegrations {
		integrations[integration] = true
	}

	for i, step := range def.Steps {
		path := fmt.Sprintf("steps[%s]", step.ID)

		for _, dep := range step.DependsOn {
			if dep == step.ID {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("step %q depends on itself", step.ID))
				continue
			}
			depIdx, ok := declared[dep]
			if !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep))
				continue
			}
			// Steps execute in declared order, so a dependency declared
			// later can never have run: the dependent would always skip.
			if depIdx > i {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("step %q depends on %q which is declared later and would never have run", step.ID, dep))
			}
		}

		if len(integrations) > 0 && !integrations[step.Integration] {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("step integration %q is not in required_integrations; the connection is not checked before the run", step.Integration))
		}

		if step.ResourceIDPath != "" && step.ResourceType == "" {
			result.AddWarning(path, schema.ErrCodeValidation,
				"resource_id_path without resource_type: the resource will be invisible to cleanup")
		}
	}

	return result
}
