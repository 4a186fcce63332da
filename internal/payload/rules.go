package payload

import (
	"context"
	"sync"

	"github.com/scenark/scenark/internal/expressions"
)

// FillFunc produces a value for a missing payload field from the outputs of
// already-executed steps. The boolean is false when no value is available.
type FillFunc func(scope *expressions.Scope) (any, bool)

// Rule fills one payload field for one provider action.
type Rule struct {
	Field string
	Fill  FillFunc
}

// RuleRegistry holds enrichment rules keyed by provider action name. Each
// rule is independent and fires only when its field is unset in the payload.
type RuleRegistry struct {
	mu    sync.RWMutex
	rules map[string][]Rule
	expr  *expressions.ExprEngine
}

// NewRuleRegistry creates a registry pre-loaded with the built-in rules for
// the supported provider actions.
func NewRuleRegistry() *RuleRegistry {
	r := &RuleRegistry{
		rules: make(map[string][]Rule),
		expr:  expressions.NewExprEngine(),
	}
	r.registerBuiltins()
	return r
}

// Register adds a rule for a provider action.
func (r *RuleRegistry) Register(providerAction string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[providerAction] = append(r.rules[providerAction], rule)
}

// RegisterExpression adds a rule whose value is computed by an expression
// evaluated against the step scope. Evaluation errors and nil results count
// as "no value available".
func (r *RuleRegistry) RegisterExpression(providerAction, field, source string) {
	engine := r.expr
	r.Register(providerAction, Rule{
		Field: field,
		Fill: func(scope *expressions.Scope) (any, bool) {
			out, err := engine.Evaluate(context.Background(), source, scope.Data())
			if err != nil || out == nil {
				return nil, false
			}
			return out, true
		},
	})
}

// RulesFor returns the rules registered for a provider action.
func (r *RuleRegistry) RulesFor(providerAction string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[providerAction]
}

// registerBuiltins wires the container-identifier rules for the supported
// integration families: when a create action needs a parent id and none was
// given, take it from the creating step or the first entry of the well-known
// lister step.
func (r *RuleRegistry) registerBuiltins() {
	r.Register("tracker.create_issue", Rule{Field: "project_id", Fill: firstOf(
		fromStep("create-project", "id"),
		fromListerStep("list-projects", "id"),
	)})
	r.Register("tracker.create_epic", Rule{Field: "project_id", Fill: firstOf(
		fromStep("create-project", "id"),
		fromListerStep("list-projects", "id"),
	)})
	r.Register("tracker.create_comment", Rule{Field: "issue_id", Fill: firstOf(
		fromStep("create-issue", "id"),
		fromListerStep("list-issues", "id"),
	)})
	r.Register("chat.post_message", Rule{Field: "channel_id", Fill: firstOf(
		fromStep("create-channel", "id"),
		fromListerStep("list-channels", "id"),
	)})
	r.Register("crm.create_deal", Rule{Field: "contact_id", Fill: firstOf(
		fromStep("create-contact", "id"),
		fromListerStep("list-contacts", "id"),
	)})
	r.Register("docs.create_document", Rule{Field: "folder_id", Fill: firstOf(
		fromStep("create-folder", "id"),
		fromListerStep("list-folders", "id"),
	)})
}

// firstOf tries each source in order and returns the first available value.
func firstOf(sources ...FillFunc) FillFunc {
	return func(scope *expressions.Scope) (any, bool) {
		for _, source := range sources {
			if value, ok := source(scope); ok {
				return value, true
			}
		}
		return nil, false
	}
}

// fromStep reads a field from a named prior step's output.
func fromStep(stepID, field string) FillFunc {
	return func(scope *expressions.Scope) (any, bool) {
		out, ok := scope.Steps[stepID].(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := out[field]
		if !ok || value == nil || value == "" {
			return nil, false
		}
		return value, true
	}
}

// fromListerStep reads a field from the first entry of a lister step's
// "items" collection.
func fromListerStep(stepID, field string) FillFunc {
	return func(scope *expressions.Scope) (any, bool) {
		out, ok := scope.Steps[stepID].(map[string]any)
		if !ok {
			return nil, false
		}
		items, ok := out["items"].([]any)
		if !ok || len(items) == 0 {
			return nil, false
		}
		first, ok := items[0].(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := first[field]
		if !ok || value == nil || value == "" {
			return nil, false
		}
		return value, true
	}
}
