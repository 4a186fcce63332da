package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenark/scenark/pkg/schema"
)

func fanOutScenario() *schema.ScenarioDefinition {
	return &schema.ScenarioDefinition{
		Name: "client-onboarding",
		Steps: []schema.StepDefinition{
			{ID: "create-project", Integration: "tracker", ActionName: "Create project", ProviderAction: "tracker.create_project"},
			{ID: "create-issue", Integration: "tracker", ProviderAction: "tracker.create_issue", DependsOn: []string{"create-project"}},
			{ID: "create-channel", Integration: "chat", ProviderAction: "chat.create_channel", DependsOn: []string{"create-project"}},
			{ID: "announce", Integration: "chat", ProviderAction: "chat.post_message",
				DependsOn: []string{"create-issue", "create-channel"}, Condition: `steps["create-issue"].id != ""`},
		},
	}
}

func TestBuild_NodesAndEdges(t *testing.T) {
	model := Build(fanOutScenario())

	// 4 steps + start + end.
	require.Len(t, model.Nodes, 6)

	start := findNode(model.Nodes, startNodeID)
	require.NotNil(t, start)
	assert.Equal(t, NodeKindStart, start.Kind)

	announce := findNode(model.Nodes, "announce")
	require.NotNil(t, announce)
	assert.Equal(t, NodeKindCondition, announce.Kind)

	project := findNode(model.Nodes, "create-project")
	require.NotNil(t, project)
	assert.Equal(t, NodeKindAction, project.Kind)
	assert.Equal(t, "Create project", project.Label)

	assert.Contains(t, model.Edges, Edge{From: startNodeID, To: "create-project"})
	assert.Contains(t, model.Edges, Edge{From: "create-project", To: "create-issue"})
	assert.Contains(t, model.Edges, Edge{From: "create-issue", To: "announce"})
	assert.Contains(t, model.Edges, Edge{From: "announce", To: endNodeID})
	assert.NotContains(t, model.Edges, Edge{From: "create-issue", To: endNodeID})
}

func TestBuild_LevelsFollowDependencyDepth(t *testing.T) {
	model := Build(fanOutScenario())

	require.Len(t, model.Levels, 5)
	assert.Equal(t, []string{startNodeID}, model.Levels[0])
	assert.Equal(t, []string{"create-project"}, model.Levels[1])
	assert.ElementsMatch(t, []string{"create-issue", "create-channel"}, model.Levels[2])
	assert.Equal(t, []string{"announce"}, model.Levels[3])
	assert.Equal(t, []string{endNodeID}, model.Levels[4])
}

func TestBuild_LabelFallsBackToProviderAction(t *testing.T) {
	model := Build(fanOutScenario())
	issue := findNode(model.Nodes, "create-issue")
	require.NotNil(t, issue)
	assert.Equal(t, "tracker.create_issue", issue.Label)
}

func TestBuildWithResults_Overlay(t *testing.T) {
	results := []schema.StepResult{
		{StepID: "create-project", Status: schema.StepSuccess, DurationMs: 120, ExternalResourceID: "PROJ-1"},
		{StepID: "create-issue", Status: schema.StepError, Error: "boom"},
		{StepID: "announce", Status: schema.StepSkipped},
	}
	model := BuildWithResults(fanOutScenario(), results)

	project := findNode(model.Nodes, "create-project")
	require.NotNil(t, project.Status)
	assert.Equal(t, "success", project.Status.Status)
	assert.Equal(t, "PROJ-1", project.Status.ResourceID)

	issue := findNode(model.Nodes, "create-issue")
	require.NotNil(t, issue.Status)
	assert.Equal(t, "boom", issue.Status.Error)

	channel := findNode(model.Nodes, "create-channel")
	assert.Nil(t, channel.Status, "no result, no overlay")
}
