// Package streaming provides pub/sub for real-time execution events,
// consumed by the admin panel's SSE endpoint.
package streaming

import "context"

// Event types published during a scenario execution.
const (
	EventExecutionStarted  = "execution.started"
	EventStepCompleted     = "step.completed"
	EventStepFailed        = "step.failed"
	EventStepSkipped       = "step.skipped"
	EventExecutionFinished = "execution.finished"
	EventCleanupFinished   = "cleanup.finished"
)

// StreamEvent is a real-time event emitted during scenario execution.
type StreamEvent struct {
	ExecutionID string `json:"execution_id"`
	TenantID    string `json:"tenant_id,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	EventType   string `json:"event_type"`
	Payload     any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time execution events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
