package expressions

import "context"

// Engine evaluates expressions over prior step outputs.
// Three implementations: CEL (step conditions), GoJQ (resource-id paths),
// Expr (computed payload fields).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
