package schema

// ScenarioDefinition is a named, ordered cross-system workflow.
// Definitions are authored ahead of time (YAML files or built-ins) and are
// read-only at execution time.
type ScenarioDefinition struct {
	Name                 string           `json:"name" yaml:"name"`
	Description          string           `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredIntegrations []string         `json:"required_integrations,omitempty" yaml:"required_integrations,omitempty"`
	Steps                []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition describes one unit of work targeting one integration.
// Steps execute in declared order; DependsOn gates execution on earlier
// steps having succeeded.
type StepDefinition struct {
	ID             string         `json:"id" yaml:"id"`
	Integration    string         `json:"integration" yaml:"integration"`
	ActionName     string         `json:"action_name,omitempty" yaml:"action_name,omitempty"`
	ProviderAction string         `json:"provider_action" yaml:"provider_action"`
	Payload        map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ResourceType   string         `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	ResourceIDPath string         `json:"resource_id_path,omitempty" yaml:"resource_id_path,omitempty"`
	Condition      string         `json:"condition,omitempty" yaml:"condition,omitempty"` // CEL, evaluated before execution
}

// Step returns the step with the given ID, or nil.
func (s *ScenarioDefinition) Step(id string) *StepDefinition {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}
	return nil
}
