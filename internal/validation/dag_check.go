package validation

import (
	"sort"

	"github.com/scenark/scenark/pkg/schema"
)

// validateDAG runs cycle detection (Kahn's algorithm) over the dependency
// graph. Invalid references are ignored here; validateSemantics reports them.
func validateDAG(def *schema.ScenarioDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		stepIDs[s.ID] = true
	}

	// edges[id] = dependencies of step id, reverse[id] = dependents of id.
	edges := make(map[string][]string, len(def.Steps))
	reverse := make(map[string][]string, len(def.Steps))

	for _, s := range def.Steps {
		seen := make(map[string]bool, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if !stepIDs[dep] || seen[dep] || dep == s.ID {
				continue
			}
			seen[dep] = true
			edges[s.ID] = append(edges[s.ID], dep)
			reverse[dep] = append(reverse[dep], s.ID)
		}
	}

	inDegree := make(map[string]int, len(def.Steps))
	for id := range stepIDs {
		inDegree[id] = len(edges[id])
	}

	queue := make([]string, 0, len(def.Steps))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range reverse[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited != len(stepIDs) {
		result.AddError("steps", schema.ErrCodeCycleDetected, "scenario contains a dependency cycle")
	}

	return result
}
