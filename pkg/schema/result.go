package schema

import "time"

// ExecutionStatus is the lifecycle state of a scenario execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCleaned   ExecutionStatus = "cleaned"
)

// StepStatus is the outcome of a single step attempt.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
)

// StepResult summarizes the outcome of one executed (or skipped) step.
// Invariant: a result with Status == StepError never carries an
// ExternalResourceID.
type StepResult struct {
	StepID               string         `json:"step_id"`
	Integration          string         `json:"integration"`
	ActionName           string         `json:"action_name,omitempty"`
	ProviderAction       string         `json:"provider_action"`
	Status               StepStatus     `json:"status"`
	ExternalResourceID   string         `json:"external_resource_id,omitempty"`
	ExternalResourceType string         `json:"external_resource_type,omitempty"`
	Data                 map[string]any `json:"data,omitempty"` // summarized response, key fields only
	Error                string         `json:"error,omitempty"`
	DurationMs           int64          `json:"duration_ms"`
}

// ExecutionResult is returned by Orchestrator.Run with the aggregate outcome.
type ExecutionResult struct {
	ExecutionID    string          `json:"execution_id"`
	TenantID       string          `json:"tenant_id"`
	ScenarioName   string          `json:"scenario_name"`
	Status         ExecutionStatus `json:"status"`
	Duplicate      bool            `json:"duplicate,omitempty"` // idempotency hit, no steps ran
	Steps          []StepResult    `json:"steps,omitempty"`
	SucceededSteps int             `json:"succeeded_steps"`
	FailedSteps    int             `json:"failed_steps"`
	SkippedSteps   int             `json:"skipped_steps"`
	ResourceCount  int             `json:"resource_count"`
	Error          string          `json:"error,omitempty"` // setup-phase failure message
	DurationMs     int64           `json:"duration_ms"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// CleanupSummary reports the outcome of a compensation sweep.
type CleanupSummary struct {
	ExecutionID string   `json:"execution_id"`
	Cleaned     int      `json:"cleaned"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors,omitempty"`
	AlreadyDone bool     `json:"already_done,omitempty"` // execution was cleaned before this call
}
