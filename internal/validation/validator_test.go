package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenark/scenark/pkg/schema"
)

func validScenario() *schema.ScenarioDefinition {
	return &schema.ScenarioDefinition{
		Name:                 "client-onboarding",
		RequiredIntegrations: []string{"tracker", "chat"},
		Steps: []schema.StepDefinition{
			{
				ID:             "create-issue",
				Integration:    "tracker",
				ProviderAction: "tracker.create_issue",
				Payload:        map[string]any{"title": "Onboard"},
				ResourceType:   "issue",
				ResourceIDPath: "id",
			},
			{
				ID:             "announce",
				Integration:    "chat",
				ProviderAction: "chat.post_message",
				DependsOn:      []string{"create-issue"},
			},
		},
	}
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidate_ValidScenario(t *testing.T) {
	v := newValidator(t)
	result := v.Validate(validScenario())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidate_MissingName(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Name = ""

	result := v.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_NoSteps(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps = nil

	result := v.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_BadProviderActionFormat(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[0].ProviderAction = "createIssue"

	result := v.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_DuplicateStepID(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[1].ID = "create-issue"
	def.Steps[1].DependsOn = nil

	result := v.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "duplicate step id")
}

func TestValidate_UnknownDependency(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[1].DependsOn = []string{"no-such-step"}

	result := v.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "unknown step")
}

func TestValidate_SelfDependency(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[1].DependsOn = []string{"announce"}

	result := v.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "depends on itself")
}

func TestValidate_ForwardReference(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	// First step depends on the second: in declared-order execution the
	// dependency can never have run.
	def.Steps[0].DependsOn = []string{"announce"}
	def.Steps[1].DependsOn = nil

	result := v.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "declared later")
}

func TestValidate_CycleDetected(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[0].DependsOn = []string{"announce"}

	result := v.Validate(def)
	require.False(t, result.Valid())

	var codes []string
	for _, issue := range result.Errors {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, schema.ErrCodeCycleDetected)
}

func TestValidate_IntegrationNotRequiredWarns(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.RequiredIntegrations = []string{"tracker"}

	result := v.Validate(def)
	assert.True(t, result.Valid())
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, `"chat"`)
}

func TestValidate_ResourcePathWithoutTypeWarns(t *testing.T) {
	v := newValidator(t)
	def := validScenario()
	def.Steps[0].ResourceType = ""

	result := v.Validate(def)
	assert.True(t, result.Valid())
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "invisible to cleanup")
}

func TestValidate_NilDefinition(t *testing.T) {
	v := newValidator(t)
	result := v.Validate(nil)
	assert.False(t, result.Valid())
}
