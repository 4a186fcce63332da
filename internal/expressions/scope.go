package expressions

// Scope holds all data available for variable resolution during one
// scenario execution. Step outputs accumulate as steps complete; the
// execution map (execution_id, tenant_id, scenario) is fixed at start.
type Scope struct {
	Steps     map[string]any // step ID -> summarized output of a completed step
	Execution map[string]any // execution metadata
}

// NewScope creates a Scope with the given execution metadata.
func NewScope(execution map[string]any) *Scope {
	return &Scope{
		Steps:     make(map[string]any),
		Execution: execution,
	}
}

// AddStepOutput registers a completed step's output. Later registrations for
// the same step ID overwrite earlier ones; the orchestrator runs steps
// sequentially so this never races.
func (s *Scope) AddStepOutput(stepID string, output map[string]any) {
	if s.Steps == nil {
		s.Steps = make(map[string]any)
	}
	s.Steps[stepID] = output
}

// Data flattens the scope into the map layout the expression engines expect.
func (s *Scope) Data() map[string]any {
	return map[string]any{
		"steps":     s.Steps,
		"execution": s.Execution,
	}
}
