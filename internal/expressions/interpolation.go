package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scenark/scenark/pkg/schema"
)

// Interpolator resolves ${{...}} references in step payloads against the
// outputs of already-executed steps.
type Interpolator struct{}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Resolve scans raw JSON for ${{...}} tokens and substitutes resolved values.
// Unresolvable references produce an error.
func (interp *Interpolator) Resolve(raw json.RawMessage, scope *Scope) (json.RawMessage, error) {
	resolved, err := interp.resolvePass(string(raw), scope, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resolved), nil
}

// ResolveLenient is like Resolve but fails open: unresolvable tokens are left
// in place and no error is returned. Used by the payload resolver, which
// defers error surfacing to the step runner.
func (interp *Interpolator) ResolveLenient(raw json.RawMessage, scope *Scope) json.RawMessage {
	resolved, err := interp.resolvePass(string(raw), scope, true)
	if err != nil {
		return raw
	}
	return json.RawMessage(resolved)
}

// resolvePass scans for ${{...}} tokens and resolves them. In lenient mode
// an unresolvable token is written back unchanged instead of failing.
func (interp *Interpolator) resolvePass(input string, scope *Scope, lenient bool) (string, error) {
	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 3 // skip "${{"

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			if lenient {
				result.WriteString(input[i+idx:])
				break
			}
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expr := strings.TrimSpace(input[start:end])
		val, err := interp.resolveExpr(expr, scope)
		if err != nil {
			if lenient {
				result.WriteString(input[i+idx : end+2])
				i = end + 2
				continue
			}
			return "", err
		}

		result.WriteString(marshalInline(val))
		i = end + 2 // skip "}}"
	}

	return result.String(), nil
}

// resolveExpr resolves a single expression path like "steps.fetch.id".
func (interp *Interpolator) resolveExpr(expr string, scope *Scope) (any, error) {
	if expr == "" {
		return nil, schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
	}

	parts := strings.SplitN(expr, ".", 2)
	switch parts[0] {
	case "steps":
		return interp.resolveSteps(expr, scope)
	case "execution":
		if len(parts) < 2 || parts[1] == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"invalid execution reference %q: expected execution.<field>", expr)
		}
		return interp.traversePath(scope.Execution, parts[1], expr)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: steps, execution", parts[0], expr).
			WithDetails(map[string]any{"expression": expr})
	}
}

// resolveSteps resolves steps.<id>[.<field>...] references.
func (interp *Interpolator) resolveSteps(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 3) // [steps, id, rest...]
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid step reference %q: expected steps.<id>[.<field>]", expr)
	}

	stepID := parts[1]
	output, ok := scope.Steps[stepID]
	if !ok {
		available := mapKeys(scope.Steps)
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"step %q not found in ${{%s}}; available steps: [%s]", stepID, expr, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": expr, "available_steps": available})
	}

	if len(parts) == 2 {
		return output, nil
	}
	return interp.traversePath(output, parts[2], expr)
}

// traversePath navigates into nested maps using a dot-delimited path.
func (interp *Interpolator) traversePath(root any, path, expr string) (any, error) {
	current := root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", expr, i)
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, expr, current)
		}
		val, ok := obj[seg]
		if !ok {
			available := mapKeys(obj)
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"field %q not found in %q; available: [%s]", seg, expr, strings.Join(available, ", ")).
				WithDetails(map[string]any{"expression": expr, "available_fields": available})
		}
		current = val
	}
	return current, nil
}

// marshalInline converts a resolved value into its inline JSON representation.
// Strings are embedded without extra quotes so references inside larger
// strings concatenate naturally; complex types are JSON-encoded inline.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}

// HasInterpolation checks if a JSON blob contains any ${{...}} references.
func HasInterpolation(raw json.RawMessage) bool {
	return strings.Contains(string(raw), "${{")
}
