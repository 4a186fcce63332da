package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/scenark/scenark/internal/store"
)

// idempotencyWindow buckets repeat submissions of the same scenario into a
// single logical execution.
const idempotencyWindow = time.Hour

// IdempotencyTracker computes the deterministic fingerprint for "this
// scenario, for this tenant, in this time window" and finds prior matching
// executions.
type IdempotencyTracker struct {
	store store.Store
	now   func() time.Time
}

// NewIdempotencyTracker creates a tracker over the given store.
func NewIdempotencyTracker(s store.Store) *IdempotencyTracker {
	return &IdempotencyTracker{store: s, now: time.Now}
}

// Fingerprint returns the hex-encoded SHA-256 of tenant, scenario name and
// the current window bucket.
func (t *IdempotencyTracker) Fingerprint(tenantID, scenarioName string) string {
	bucket := t.now().Unix() / int64(idempotencyWindow.Seconds())
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", tenantID, scenarioName, bucket))
	return hex.EncodeToString(sum[:])
}

// FindExisting returns the most recent prior execution with the same
// fingerprint, or nil. Only running and completed executions match, so a
// failed run can be re-triggered without force.
func (t *IdempotencyTracker) FindExisting(ctx context.Context, tenantID, hash string) (*store.Execution, error) {
	return t.store.FindExecutionByHash(ctx, tenantID, hash)
}
