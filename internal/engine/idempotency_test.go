package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/pkg/schema"
)

func trackerAt(ts time.Time) *IdempotencyTracker {
	t := NewIdempotencyTracker(newMemStore())
	t.now = func() time.Time { return ts }
	return t
}

func TestFingerprint_StableWithinWindow(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 5, 0, 0, time.UTC)

	a := trackerAt(base).Fingerprint("org-1", "client-onboarding")
	b := trackerAt(base.Add(40 * time.Minute)).Fingerprint("org-1", "client-onboarding")
	assert.Equal(t, a, b, "same tenant/scenario in the same hour bucket")

	assert.Len(t, a, 64, "hex-encoded sha-256")
}

func TestFingerprint_ChangesAcrossWindows(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 59, 0, 0, time.UTC)

	a := trackerAt(base).Fingerprint("org-1", "client-onboarding")
	b := trackerAt(base.Add(2 * time.Minute)).Fingerprint("org-1", "client-onboarding")
	assert.NotEqual(t, a, b, "hour boundary crossed")
}

func TestFingerprint_DistinguishesTenantAndScenario(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 5, 0, 0, time.UTC)
	tr := trackerAt(base)

	assert.NotEqual(t,
		tr.Fingerprint("org-1", "client-onboarding"),
		tr.Fingerprint("org-2", "client-onboarding"))
	assert.NotEqual(t,
		tr.Fingerprint("org-1", "client-onboarding"),
		tr.Fingerprint("org-1", "incident-drill"))
}

func TestFindExisting_OnlyMatchesRunningOrCompleted(t *testing.T) {
	ms := newMemStore()
	tracker := NewIdempotencyTracker(ms)
	ctx := context.Background()

	require.NoError(t, ms.CreateExecution(ctx, &store.Execution{
		ID: "e1", TenantID: "org-1", ExecutionHash: "h", Status: schema.ExecutionFailed,
		CreatedAt: time.Now().UTC(),
	}))

	found, err := tracker.FindExisting(ctx, "org-1", "h")
	require.NoError(t, err)
	assert.Nil(t, found, "failed prior run must be re-triable")

	require.NoError(t, ms.CreateExecution(ctx, &store.Execution{
		ID: "e2", TenantID: "org-1", ExecutionHash: "h", Status: schema.ExecutionCompleted,
		CreatedAt: time.Now().UTC(),
	}))

	found, err = tracker.FindExisting(ctx, "org-1", "h")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "e2", found.ID)
}
