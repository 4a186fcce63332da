package payload

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/scenark/scenark/internal/expressions"
	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/pkg/schema"
)

// AuditTag is prefixed to every text-bearing payload field so artifacts
// created by the orchestrator are identifiable in the external system and can
// be found again during cleanup.
const AuditTag = "[scenark]"

// textFields are the payload field names that receive the audit tag.
var textFields = map[string]bool{
	"title":       true,
	"body":        true,
	"description": true,
	"name":        true,
	"summary":     true,
	"subject":     true,
	"text":        true,
	"content":     true,
}

// Resolver turns a step's declared payload into the concrete input sent to
// the provider. Three passes run in order: token substitution against prior
// step outputs, the audit-tag pass, then per-action enrichment rules.
//
// The resolver never fails. Unresolvable tokens are left in place and missing
// enrichment sources leave the field unset; the provider's own validation
// surfaces the problem through the step runner.
type Resolver struct {
	interpolator *expressions.Interpolator
	rules        *RuleRegistry
	logger       *slog.Logger
}

// NewResolver creates a Resolver backed by the given rule registry.
func NewResolver(rules *RuleRegistry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		interpolator: expressions.NewInterpolator(),
		rules:        rules,
		logger:       logger,
	}
}

// Resolve produces the concrete payload for a step.
func (r *Resolver) Resolve(ctx context.Context, step schema.StepDefinition, scope *expressions.Scope) map[string]any {
	resolved := r.substitute(ctx, deepCopy(step.Payload), scope)

	out, ok := resolved.(map[string]any)
	if !ok {
		out = make(map[string]any)
	}

	applyAuditTag(out)
	r.enrich(ctx, step, out, scope)
	return out
}

// substitute walks the payload and replaces interpolation tokens in every
// string value. Lenient: tokens that do not resolve stay verbatim.
func (r *Resolver) substitute(ctx context.Context, value any, scope *expressions.Scope) any {
	switch v := value.(type) {
	case string:
		return string(r.interpolator.ResolveLenient(json.RawMessage(v), scope))
	case map[string]any:
		for k, inner := range v {
			v[k] = r.substitute(ctx, inner, scope)
		}
		return v
	case []any:
		for i, inner := range v {
			v[i] = r.substitute(ctx, inner, scope)
		}
		return v
	default:
		return value
	}
}

// applyAuditTag prefixes text-bearing top-level fields with the audit tag,
// skipping fields that already carry it.
func applyAuditTag(payload map[string]any) {
	for field, value := range payload {
		if !textFields[field] {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(s, AuditTag) {
			continue
		}
		payload[field] = AuditTag + " " + s
	}
}

// enrich fills required-but-unspecified fields from prior step outputs. Rules
// are keyed by the target provider action, never by scenario step id, so one
// rule serves every scenario that calls the same action.
func (r *Resolver) enrich(ctx context.Context, step schema.StepDefinition, payload map[string]any, scope *expressions.Scope) {
	for _, rule := range r.rules.RulesFor(step.ProviderAction) {
		if existing, ok := payload[rule.Field]; ok && existing != nil && existing != "" {
			continue
		}
		value, ok := rule.Fill(scope)
		if !ok || value == nil {
			logging.LogWith(ctx, r.logger).Debug("enrichment source empty, leaving field unset",
				"provider_action", step.ProviderAction,
				"field", rule.Field)
			continue
		}
		payload[rule.Field] = value
	}
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = deepCopy(inner)
		}
		return out
	default:
		return value
	}
}
