package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scenark/scenark/pkg/schema"
)

// Fallback wraps a Store and degrades gracefully when the durable schema is
// absent (e.g. migrations not yet applied in a fresh environment). The first
// call probes the inner store once; on failure every write becomes a no-op
// and reads return empty results, so the orchestrator can still run with an
// in-memory-only audit trail.
type Fallback struct {
	inner  Store
	logger *slog.Logger

	probeOnce sync.Once
	available bool
}

// NewFallback wraps the given store. A nil inner store is treated as
// permanently unavailable.
func NewFallback(inner Store, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{inner: inner, logger: logger}
}

// Available reports whether the durable store passed the probe. The probe
// runs once per process lifetime and the result is cached.
func (f *Fallback) Available(ctx context.Context) bool {
	f.probeOnce.Do(func() {
		if f.inner == nil {
			f.logger.Warn("durable store not configured, running in-memory only")
			return
		}
		if err := f.inner.Ping(ctx); err != nil {
			f.logger.Warn("durable store unavailable, degrading writes to no-ops",
				slog.String("error", err.Error()))
			return
		}
		f.available = true
	})
	return f.available
}

func (f *Fallback) CreateExecution(ctx context.Context, exec *Execution) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.CreateExecution(ctx, exec)
}

func (f *Fallback) GetExecution(ctx context.Context, id string) (*Execution, error) {
	if !f.Available(ctx) {
		return nil, storeNotFound("execution", id)
	}
	return f.inner.GetExecution(ctx, id)
}

func (f *Fallback) FinalizeExecution(ctx context.Context, id string, status schema.ExecutionStatus, resourceCount int, completedAt time.Time) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.FinalizeExecution(ctx, id, status, resourceCount, completedAt)
}

func (f *Fallback) MarkExecutionCleaned(ctx context.Context, id string) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.MarkExecutionCleaned(ctx, id)
}

func (f *Fallback) ListExecutions(ctx context.Context, tenantID string, limit int) ([]*Execution, error) {
	if !f.Available(ctx) {
		return nil, nil
	}
	return f.inner.ListExecutions(ctx, tenantID, limit)
}

func (f *Fallback) FindExecutionByHash(ctx context.Context, tenantID, hash string) (*Execution, error) {
	if !f.Available(ctx) {
		return nil, nil
	}
	return f.inner.FindExecutionByHash(ctx, tenantID, hash)
}

func (f *Fallback) CountExecutionsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	if !f.Available(ctx) {
		return 0, nil
	}
	return f.inner.CountExecutionsSince(ctx, tenantID, since)
}

func (f *Fallback) AppendLogEntry(ctx context.Context, entry *LogEntry) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.AppendLogEntry(ctx, entry)
}

func (f *Fallback) ListLogEntries(ctx context.Context, executionID string) ([]*LogEntry, error) {
	if !f.Available(ctx) {
		return nil, nil
	}
	return f.inner.ListLogEntries(ctx, executionID)
}

func (f *Fallback) ListCleanable(ctx context.Context, executionID string) ([]*LogEntry, error) {
	if !f.Available(ctx) {
		return nil, nil
	}
	return f.inner.ListCleanable(ctx, executionID)
}

func (f *Fallback) MarkEntryCleaned(ctx context.Context, entryID int64) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.MarkEntryCleaned(ctx, entryID)
}

func (f *Fallback) IsSandboxTenant(ctx context.Context, tenantID string) (bool, error) {
	if !f.Available(ctx) {
		return false, schema.NewError(schema.ErrCodeStore, "sandbox flag storage unavailable")
	}
	return f.inner.IsSandboxTenant(ctx, tenantID)
}

func (f *Fallback) UpsertSandboxTenant(ctx context.Context, tenantID string, enabled bool) error {
	if !f.Available(ctx) {
		return schema.NewError(schema.ErrCodeStore, "sandbox flag storage unavailable")
	}
	return f.inner.UpsertSandboxTenant(ctx, tenantID, enabled)
}

func (f *Fallback) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	if !f.Available(ctx) {
		return schema.NewError(schema.ErrCodeStore, "scheduled run storage unavailable")
	}
	return f.inner.CreateScheduledRun(ctx, run)
}

func (f *Fallback) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	if !f.Available(ctx) {
		return nil, storeNotFound("scheduled run", id)
	}
	return f.inner.GetScheduledRun(ctx, id)
}

func (f *Fallback) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.UpdateScheduledRun(ctx, id, update)
}

func (f *Fallback) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	if !f.Available(ctx) {
		return nil, nil
	}
	return f.inner.ListScheduledRuns(ctx, filter)
}

func (f *Fallback) DeleteScheduledRun(ctx context.Context, id string) error {
	if !f.Available(ctx) {
		return nil
	}
	return f.inner.DeleteScheduledRun(ctx, id)
}

func (f *Fallback) Migrate(ctx context.Context) error {
	if f.inner == nil {
		return nil
	}
	return f.inner.Migrate(ctx)
}

func (f *Fallback) Ping(ctx context.Context) error {
	if !f.Available(ctx) {
		return schema.NewError(schema.ErrCodeStore, "durable store unavailable")
	}
	return nil
}

func (f *Fallback) Close() error {
	if f.inner == nil {
		return nil
	}
	return f.inner.Close()
}

var _ Store = (*Fallback)(nil)
