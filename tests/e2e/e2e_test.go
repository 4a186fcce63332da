package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenark/scenark/internal/actions"
	"github.com/scenark/scenark/internal/catalog"
	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/engine"
	"github.com/scenark/scenark/internal/expressions"
	"github.com/scenark/scenark/internal/payload"
	"github.com/scenark/scenark/internal/scheduler"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/pkg/schema"
)

// --- Fake provider ---

// provider is an HTTP stand-in for an external system. It answers every
// provider action with a canned body and records what it was asked to do.
type provider struct {
	mu        sync.Mutex
	calls     []providerCall
	responses map[string]map[string]any // provider action -> response body
	failWith  map[string]int            // provider action -> status code
	srv       *httptest.Server
}

type providerCall struct {
	Action string
	Body   map[string]any
}

func newProvider(t *testing.T) *provider {
	p := &provider{
		responses: map[string]map[string]any{
			"tracker.create_issue":   {"id": "ISS-1", "key": "PROJ-1"},
			"tracker.create_comment": {"id": "CMT-1"},
			"chat.create_channel":    {"id": "C-1"},
			"chat.post_message":      {"ts": "1712.0001"},
		},
		failWith: map[string]int{},
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := strings.TrimPrefix(r.URL.Path, "/actions/")

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		p.mu.Lock()
		p.calls = append(p.calls, providerCall{Action: action, Body: body})
		status, failing := p.failWith[action]
		resp, known := p.responses[action]
		p.mu.Unlock()

		if failing {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":"injected failure"}`)
			return
		}
		if !known {
			resp = map[string]any{"ok": true}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) fail(action string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith[action] = status
}

func (p *provider) callsFor(action string) []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []providerCall
	for _, c := range p.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func (p *provider) actionSequence() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Action
	}
	return out
}

// --- Test harness ---

type harness struct {
	t            *testing.T
	store        *store.LibSQLStore
	provider     *provider
	orchestrator *engine.Orchestrator
	cleanup      *engine.CleanupEngine
	scheduler    *scheduler.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	p := newProvider(t)

	resolver := connections.NewStaticResolver()
	for _, integration := range []string{"tracker", "chat"} {
		resolver.Add("org-1", &connections.Handle{
			Integration: integration,
			BaseURL:     p.srv.URL,
			AuthToken:   "tok-e2e",
		})
	}

	cat, err := catalog.New()
	require.NoError(t, err)

	executor := actions.NewHTTPExecutor(actions.HTTPConfig{})
	runner := engine.NewStepRunner(executor, engine.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)
	payloadResolver := payload.NewResolver(payload.NewRuleRegistry(), nil)

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	cfg := engine.Config{
		Enabled:        true,
		AllowedTenants: []string{"org-1"},
		DailyQuota:     20,
	}
	orch := engine.NewOrchestrator(cfg, s, cat, resolver, payloadResolver, runner, cel, nil)

	cleanup := engine.NewCleanupEngine(s, actions.NewUndoRegistry(), executor, resolver, nil)

	return &harness{
		t:            t,
		store:        s,
		provider:     p,
		orchestrator: orch,
		cleanup:      cleanup,
		scheduler:    scheduler.NewScheduler(s, orch, nil),
	}
}

// --- Tests ---

func TestClientOnboardingEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orchestrator.Run(ctx, "org-1", "client-onboarding", false)
	require.NoError(t, err)

	assert.Equal(t, schema.ExecutionCompleted, result.Status)
	assert.Equal(t, 3, result.SucceededSteps)
	assert.Equal(t, 3, result.ResourceCount)

	// The provider saw the audit tag and the interpolated issue key.
	issues := h.provider.callsFor("tracker.create_issue")
	require.Len(t, issues, 1)
	assert.Equal(t, "[scenark] Onboard new client", issues[0].Body["title"])

	messages := h.provider.callsFor("chat.post_message")
	require.Len(t, messages, 1)
	assert.Equal(t, "[scenark] Tracking onboarding in PROJ-1", messages[0].Body["text"])

	// The audit trail was persisted with resource ids.
	entries, err := h.store.ListLogEntries(ctx, result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byStep := map[string]*store.LogEntry{}
	for _, e := range entries {
		byStep[e.StepID] = e
	}
	assert.Equal(t, "ISS-1", byStep["create-issue"].ExternalResourceID)
	assert.Equal(t, "issue", byStep["create-issue"].ExternalResourceType)
	assert.Equal(t, "1712.0001", byStep["announce"].ExternalResourceID)
}

func TestIdempotencyWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orchestrator.Run(ctx, "org-1", "incident-drill", false)
	require.NoError(t, err)
	require.Equal(t, schema.ExecutionCompleted, first.Status)

	second, err := h.orchestrator.Run(ctx, "org-1", "incident-drill", false)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)

	// One issue created, not two.
	assert.Len(t, h.provider.callsFor("tracker.create_issue"), 1)

	third, err := h.orchestrator.Run(ctx, "org-1", "incident-drill", true)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.NotEqual(t, first.ExecutionID, third.ExecutionID)
	assert.Len(t, h.provider.callsFor("tracker.create_issue"), 2)
}

func TestCleanupRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orchestrator.Run(ctx, "org-1", "client-onboarding", false)
	require.NoError(t, err)
	require.Equal(t, schema.ExecutionCompleted, result.Status)

	summary, err := h.cleanup.Cleanup(ctx, "org-1", result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Cleaned)
	assert.Zero(t, summary.Failed)

	// Undo runs newest-first: the message goes before the channel and issue.
	seq := h.provider.actionSequence()
	deletes := seq[len(seq)-3:]
	assert.Equal(t, []string{"chat.delete_message", "chat.archive_channel", "tracker.delete_issue"}, deletes)

	exec, err := h.store.GetExecution(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCleaned, exec.Status)

	// Second sweep is a no-op.
	again, err := h.cleanup.Cleanup(ctx, "org-1", result.ExecutionID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyDone)
}

func TestCleanupTenantScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.orchestrator.Run(ctx, "org-1", "incident-drill", false)
	require.NoError(t, err)

	_, err = h.cleanup.Cleanup(ctx, "org-2", result.ExecutionID)
	require.Error(t, err)
	var serr *schema.ScenarkError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestPartialExecutionSkipsDependents(t *testing.T) {
	h := newHarness(t)
	h.provider.fail("chat.create_channel", http.StatusBadGateway)
	ctx := context.Background()

	result, err := h.orchestrator.Run(ctx, "org-1", "client-onboarding", false)
	require.NoError(t, err)

	assert.Equal(t, schema.ExecutionPartial, result.Status)
	assert.Equal(t, 1, result.SucceededSteps)
	assert.Equal(t, 1, result.FailedSteps)
	assert.Equal(t, 1, result.SkippedSteps)

	// 502 is retryable: initial attempt plus three retries.
	assert.Len(t, h.provider.callsFor("chat.create_channel"), 4)
	// The dependent announce step never reached the provider.
	assert.Empty(t, h.provider.callsFor("chat.post_message"))
}

func TestTerminalProviderErrorDoesNotRetry(t *testing.T) {
	h := newHarness(t)
	h.provider.fail("tracker.create_issue", http.StatusUnprocessableEntity)
	ctx := context.Background()

	result, err := h.orchestrator.Run(ctx, "org-1", "incident-drill", false)
	require.NoError(t, err)

	assert.Equal(t, schema.ExecutionFailed, result.Status)
	assert.Len(t, h.provider.callsFor("tracker.create_issue"), 1)
}

func TestMissingIntegrationsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// crm-pipeline-demo needs crm and docs, neither of which is connected.
	_, err := h.orchestrator.Run(ctx, "org-1", "crm-pipeline-demo", false)
	require.Error(t, err)

	var serr *schema.ScenarkError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeMissingIntegrations, serr.Code)
	assert.ElementsMatch(t, []string{"crm", "docs"}, serr.Details["missing"])

	// Precondition failures never create execution records.
	executions, err := h.store.ListExecutions(ctx, "org-1", 10)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestUnknownTenantRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.Run(context.Background(), "org-99", "client-onboarding", false)
	require.Error(t, err)

	var serr *schema.ScenarkError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotSandboxed, serr.Code)
}

func TestPersistedSandboxFlagAdmitsTenant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.UpsertSandboxTenant(ctx, "org-2", true))

	// org-2 has no connections, so the run fails later at the integration
	// precondition rather than the sandbox gate.
	_, err := h.orchestrator.Run(ctx, "org-2", "client-onboarding", false)
	require.Error(t, err)

	var serr *schema.ScenarkError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeMissingIntegrations, serr.Code)
}

func TestScheduledRunTriggersExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, h.store.CreateScheduledRun(ctx, &store.ScheduledRun{
		ID:             "sched-1",
		TenantID:       "org-1",
		ScenarioName:   "incident-drill",
		CronExpression: "*/5 * * * *",
		Enabled:        true,
		NextRunAt:      &past,
		CreatedAt:      time.Now().UTC(),
	}))

	require.NoError(t, h.scheduler.RecoverMissed(ctx))

	assert.Len(t, h.provider.callsFor("tracker.create_issue"), 1)

	run, err := h.store.GetScheduledRun(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "success", run.LastRunStatus)
	require.NotNil(t, run.NextRunAt)
	assert.True(t, run.NextRunAt.After(time.Now().UTC()))
}
