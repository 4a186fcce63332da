package store

import (
	"context"
	"time"

	"github.com/scenark/scenark/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	FinalizeExecution(ctx context.Context, id string, status schema.ExecutionStatus, resourceCount int, completedAt time.Time) error
	MarkExecutionCleaned(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, tenantID string, limit int) ([]*Execution, error)
	FindExecutionByHash(ctx context.Context, tenantID, hash string) (*Execution, error)
	CountExecutionsSince(ctx context.Context, tenantID string, since time.Time) (int, error)

	// Execution log (append-only)
	AppendLogEntry(ctx context.Context, entry *LogEntry) error
	ListLogEntries(ctx context.Context, executionID string) ([]*LogEntry, error)
	ListCleanable(ctx context.Context, executionID string) ([]*LogEntry, error)
	MarkEntryCleaned(ctx context.Context, entryID int64) error

	// Sandbox tenants
	IsSandboxTenant(ctx context.Context, tenantID string) (bool, error)
	UpsertSandboxTenant(ctx context.Context, tenantID string, enabled bool) error

	// Scheduled runs
	CreateScheduledRun(ctx context.Context, run *ScheduledRun) error
	GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error
	ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error)
	DeleteScheduledRun(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
