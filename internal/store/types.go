package store

import (
	"encoding/json"
	"time"

	"github.com/scenark/scenark/pkg/schema"
)

// Execution is the persisted record of a scenario run.
type Execution struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenant_id"`
	ScenarioName  string                 `json:"scenario_name"`
	ExecutionHash string                 `json:"execution_hash"`
	Status        schema.ExecutionStatus `json:"status"`
	ResourceCount int                    `json:"resource_count"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// Cleanup states for a log entry.
const (
	CleanupPending = "pending"
	CleanupCleaned = "cleaned"
)

// LogEntry is one step attempt in the execution audit trail.
// Persisted independently of in-memory results so compensation can run
// after a process restart.
type LogEntry struct {
	ID                   int64             `json:"id"`
	ExecutionID          string            `json:"execution_id"`
	StepID               string            `json:"step_id"`
	Integration          string            `json:"integration"`
	ActionName           string            `json:"action_name,omitempty"`
	ProviderAction       string            `json:"provider_action"`
	Status               schema.StepStatus `json:"status"`
	ExternalResourceID   string            `json:"external_resource_id,omitempty"`
	ExternalResourceType string            `json:"external_resource_type,omitempty"`
	Data                 json.RawMessage   `json:"data,omitempty"` // summarized output
	Error                string            `json:"error,omitempty"`
	DurationMs           int64             `json:"duration_ms"`
	CleanupState         string            `json:"cleanup_state"` // pending | cleaned
	CreatedAt            time.Time         `json:"created_at"`
}

// ScheduledRun is a cron-triggered scenario execution.
type ScheduledRun struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	ScenarioName   string     `json:"scenario_name"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	TenantID string `json:"tenant_id,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}
