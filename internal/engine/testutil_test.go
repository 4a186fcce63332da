package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/pkg/schema"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu         sync.Mutex
	executions map[string]*store.Execution
	entries    []*store.LogEntry
	nextID     int64
	sandbox    map[string]bool
	scheduled  map[string]*store.ScheduledRun
}

func newMemStore() *memStore {
	return &memStore{
		executions: make(map[string]*store.Execution),
		sandbox:    make(map[string]bool),
		scheduled:  make(map[string]*store.ScheduledRun),
	}
}

func (m *memStore) CreateExecution(ctx context.Context, exec *store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ID] = &cp
	return nil
}

func (m *memStore) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	cp := *exec
	return &cp, nil
}

func (m *memStore) FinalizeExecution(ctx context.Context, id string, status schema.ExecutionStatus, resourceCount int, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	exec.Status = status
	exec.ResourceCount = resourceCount
	exec.CompletedAt = &completedAt
	return nil
}

func (m *memStore) MarkExecutionCleaned(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	exec.Status = schema.ExecutionCleaned
	return nil
}

func (m *memStore) ListExecutions(ctx context.Context, tenantID string, limit int) ([]*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Execution
	for _, exec := range m.executions {
		if exec.TenantID == tenantID {
			cp := *exec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FindExecutionByHash(ctx context.Context, tenantID, hash string) (*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *store.Execution
	for _, exec := range m.executions {
		if exec.TenantID != tenantID || exec.ExecutionHash != hash {
			continue
		}
		if exec.Status != schema.ExecutionRunning && exec.Status != schema.ExecutionCompleted {
			continue
		}
		if latest == nil || exec.CreatedAt.After(latest.CreatedAt) {
			latest = exec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) CountExecutionsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, exec := range m.executions {
		if exec.TenantID == tenantID && !exec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) AppendLogEntry(ctx context.Context, entry *store.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *entry
	cp.ID = m.nextID
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memStore) ListLogEntries(ctx context.Context, executionID string) ([]*store.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.LogEntry
	for _, e := range m.entries {
		if e.ExecutionID == executionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListCleanable(ctx context.Context, executionID string) ([]*store.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.LogEntry
	for _, e := range m.entries {
		if e.ExecutionID != executionID || e.Status != schema.StepSuccess {
			continue
		}
		if e.ExternalResourceID == "" || e.CleanupState != store.CleanupPending {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	// Most recent first.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) MarkEntryCleaned(ctx context.Context, entryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == entryID {
			e.CleanupState = store.CleanupCleaned
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "log entry %d not found", entryID)
}

func (m *memStore) IsSandboxTenant(ctx context.Context, tenantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sandbox[tenantID], nil
}

func (m *memStore) UpsertSandboxTenant(ctx context.Context, tenantID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sandbox[tenantID] = enabled
	return nil
}

func (m *memStore) CreateScheduledRun(ctx context.Context, run *store.ScheduledRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.scheduled[run.ID] = &cp
	return nil
}

func (m *memStore) GetScheduledRun(ctx context.Context, id string) (*store.ScheduledRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.scheduled[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled run %q not found", id)
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) UpdateScheduledRun(ctx context.Context, id string, update store.ScheduledRunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.scheduled[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled run %q not found", id)
	}
	if update.Enabled != nil {
		run.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		run.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		run.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		run.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (m *memStore) ListScheduledRuns(ctx context.Context, filter store.ScheduledRunFilter) ([]*store.ScheduledRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ScheduledRun
	for _, run := range m.scheduled {
		if filter.TenantID != "" && run.TenantID != filter.TenantID {
			continue
		}
		if filter.Enabled != nil && run.Enabled != *filter.Enabled {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteScheduledRun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scheduled, id)
	return nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Close() error                      { return nil }

var _ store.Store = (*memStore)(nil)

// fakeCall records one executor invocation.
type fakeCall struct {
	Action string
	Input  map[string]any
}

// fakeExecutor returns scripted responses per provider action. Actions with
// no script succeed with a default output.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     []fakeCall
}

type fakeResponse struct {
	output map[string]any
	err    error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: make(map[string][]fakeResponse)}
}

func (f *fakeExecutor) respond(action string, output map[string]any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[action] = append(f.responses[action], fakeResponse{output: output, err: err})
}

func (f *fakeExecutor) Execute(ctx context.Context, conn *connections.Handle, providerAction string, input map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{Action: providerAction, Input: input})

	queue := f.responses[providerAction]
	if len(queue) == 0 {
		return map[string]any{"id": "R-default"}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		f.responses[providerAction] = queue[1:]
	}
	return next.output, next.err
}

func (f *fakeExecutor) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.calls {
		if c.Action == action {
			count++
		}
	}
	return count
}

func (f *fakeExecutor) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Action
	}
	return out
}

func (f *fakeExecutor) lastInput(action string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Action == action {
			return f.calls[i].Input
		}
	}
	return nil
}

// stubCatalog serves scenarios from a map.
type stubCatalog map[string]*schema.ScenarioDefinition

func (c stubCatalog) Get(name string) (*schema.ScenarioDefinition, bool) {
	def, ok := c[name]
	return def, ok
}
