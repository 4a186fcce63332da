package diagram

import (
	"github.com/scenark/scenark/pkg/schema"
)

const (
	startNodeID = "__start"
	endNodeID   = "__end"
)

// Build constructs a DiagramModel from a scenario definition. Steps without
// dependencies hang off a synthetic start node; steps nothing depends on
// feed a synthetic end node.
func Build(def *schema.ScenarioDefinition) *DiagramModel {
	model := &DiagramModel{Title: def.Name}

	model.Nodes = append(model.Nodes, &Node{ID: startNodeID, Label: "start", Kind: NodeKindStart})

	hasDependents := make(map[string]bool)
	for _, step := range def.Steps {
		kind := NodeKindAction
		if step.Condition != "" {
			kind = NodeKindCondition
		}
		label := step.ActionName
		if label == "" {
			label = step.ProviderAction
		}
		model.Nodes = append(model.Nodes, &Node{
			ID:          step.ID,
			Label:       label,
			Kind:        kind,
			Integration: step.Integration,
		})

		if len(step.DependsOn) == 0 {
			model.Edges = append(model.Edges, Edge{From: startNodeID, To: step.ID})
		}
		for _, dep := range step.DependsOn {
			model.Edges = append(model.Edges, Edge{From: dep, To: step.ID})
			hasDependents[dep] = true
		}
	}

	model.Nodes = append(model.Nodes, &Node{ID: endNodeID, Label: "end", Kind: NodeKindEnd})
	for _, step := range def.Steps {
		if !hasDependents[step.ID] {
			model.Edges = append(model.Edges, Edge{From: step.ID, To: endNodeID})
		}
	}

	model.Levels = layerByDepth(def)
	return model
}

// BuildWithResults constructs the scenario diagram and overlays each node
// with the outcome of the given execution's steps.
func BuildWithResults(def *schema.ScenarioDefinition, results []schema.StepResult) *DiagramModel {
	model := Build(def)

	byStep := make(map[string]schema.StepResult, len(results))
	for _, r := range results {
		byStep[r.StepID] = r
	}

	for _, node := range model.Nodes {
		r, ok := byStep[node.ID]
		if !ok {
			continue
		}
		node.Status = &StatusOverlay{
			Status:     string(r.Status),
			DurationMs: r.DurationMs,
			ResourceID: r.ExternalResourceID,
			Error:      r.Error,
		}
	}
	return model
}

// layerByDepth groups step IDs by their dependency depth: a step's level is
// one past the deepest of its dependencies. Unknown or cyclic references
// have already been rejected at load time, so depth lookups always resolve.
func layerByDepth(def *schema.ScenarioDefinition) [][]string {
	depth := make(map[string]int, len(def.Steps))
	for _, step := range def.Steps {
		d := 0
		for _, dep := range step.DependsOn {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[step.ID] = d
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, 0, maxDepth+3)
	levels = append(levels, []string{startNodeID})
	for d := 0; d <= maxDepth; d++ {
		var level []string
		for _, step := range def.Steps {
			if depth[step.ID] == d {
				level = append(level, step.ID)
			}
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}
	levels = append(levels, []string{endNodeID})
	return levels
}
