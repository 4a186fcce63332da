package actions

import (
	"context"

	"github.com/scenark/scenark/internal/connections"
)

// Executor performs one named provider action against one connected external
// system. It is the provider boundary: transport, response-envelope
// normalization, and retryable-vs-terminal error categorization all live
// behind this interface.
//
// Implementations must return *schema.ScenarkError values whose codes encode
// retryability (EXECUTION_ERROR for transport failures and 5xx/429 responses,
// NON_RETRYABLE for other 4xx responses) so the step runner can classify
// failures without knowing the transport.
type Executor interface {
	Execute(ctx context.Context, conn *connections.Handle, providerAction string, input map[string]any) (map[string]any, error)
}
