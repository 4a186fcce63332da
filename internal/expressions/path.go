package expressions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/scenark/scenark/pkg/schema"
)

// PathExtractor resolves dotted resource-id paths (e.g. "data.issue.id")
// into provider responses using compiled gojq queries.
// Thread-safe: compiled *Code objects are cached and reused across goroutines.
type PathExtractor struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewPathExtractor creates a new PathExtractor.
func NewPathExtractor() *PathExtractor {
	return &PathExtractor{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *PathExtractor) Name() string {
	return "jq"
}

// Evaluate compiles (or retrieves from cache) a jq query and evaluates it
// against the provided data. Dotted paths ("a.b.c") are rewritten to jq
// syntax (".a.b.c"); anything already starting with '.' is passed through,
// so full jq filters remain available.
func (e *PathExtractor) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty path expression")
	}

	code, err := e.getOrCompile(toQuery(expression))
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeForJQ(data))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"path evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// ExtractString resolves a dotted path into a response object and stringifies
// the result. Returns ("", false) when the path cannot be resolved — callers
// treat that as "no resource id", not an error.
func (e *PathExtractor) ExtractString(ctx context.Context, path string, data map[string]any) (string, bool) {
	val, err := e.Evaluate(ctx, path, data)
	if err != nil || val == nil {
		return "", false
	}
	switch v := val.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%v", v), true
	case int:
		return fmt.Sprintf("%d", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	default:
		return "", false
	}
}

// toQuery rewrites a dotted path to a jq query with optional traversal, so a
// missing intermediate object yields null instead of an error.
func toQuery(expression string) string {
	if strings.HasPrefix(expression, ".") {
		return expression
	}
	var b strings.Builder
	for _, seg := range strings.Split(expression, ".") {
		b.WriteString(fmt.Sprintf(`.[%q]?`, seg))
	}
	return b.String()
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (e *PathExtractor) getOrCompile(query string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[query]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", query, err.Error()).
			WithCause(err)
	}

	code, err := gojq.Compile(parsed,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", query, err.Error()).
			WithCause(err)
	}

	e.cache[query] = code
	return code, nil
}

// normalizeForJQ converts Go native types to jq-compatible types.
// jq uses float64 for all numbers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*PathExtractor)(nil)
