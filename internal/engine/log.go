package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/internal/streaming"
	"github.com/scenark/scenark/pkg/schema"
)

// summarizeThreshold is the serialized size above which a step output is
// reduced to a field→shape map instead of being stored verbatim.
const summarizeThreshold = 1024

// ExecutionLog is the append-only audit trail of a scenario run. It writes
// through the store's degraded-mode wrapper, so log writes never fail a run:
// persistence errors are logged and swallowed.
type ExecutionLog struct {
	store  store.Store
	hub    streaming.EventHub
	logger *slog.Logger
}

// NewExecutionLog creates an ExecutionLog over the given store.
func NewExecutionLog(s store.Store, logger *slog.Logger) *ExecutionLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionLog{store: s, logger: logger}
}

// AttachHub makes the log publish real-time events alongside persistence.
// Call before the first run; publishing is best-effort.
func (l *ExecutionLog) AttachHub(hub streaming.EventHub) {
	l.hub = hub
}

func (l *ExecutionLog) publish(ctx context.Context, event streaming.StreamEvent) {
	if l.hub == nil {
		return
	}
	_ = l.hub.Publish(ctx, event)
}

// CreateExecution persists a new execution record in running state and
// returns its identifier. The identifier is generated locally, so it is
// usable even when the durable store is degraded.
func (l *ExecutionLog) CreateExecution(ctx context.Context, tenantID, scenarioName, hash string) string {
	exec := &store.Execution{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ScenarioName:  scenarioName,
		ExecutionHash: hash,
		Status:        schema.ExecutionRunning,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.CreateExecution(ctx, exec); err != nil {
		logging.LogWith(ctx, l.logger).Warn("failed to persist execution record",
			"error", err.Error())
	}
	l.publish(ctx, streaming.StreamEvent{
		ExecutionID: exec.ID,
		TenantID:    tenantID,
		EventType:   streaming.EventExecutionStarted,
		Payload:     map[string]any{"scenario": scenarioName},
	})
	return exec.ID
}

// Append records one step attempt. Called immediately after each step so
// partial progress survives a crash.
func (l *ExecutionLog) Append(ctx context.Context, executionID string, result schema.StepResult) {
	var data json.RawMessage
	if len(result.Data) > 0 {
		if b, err := json.Marshal(result.Data); err == nil {
			data = b
		}
	}
	entry := &store.LogEntry{
		ExecutionID:          executionID,
		StepID:               result.StepID,
		Integration:          result.Integration,
		ActionName:           result.ActionName,
		ProviderAction:       result.ProviderAction,
		Status:               result.Status,
		ExternalResourceID:   result.ExternalResourceID,
		ExternalResourceType: result.ExternalResourceType,
		Data:                 data,
		Error:                result.Error,
		DurationMs:           result.DurationMs,
		CleanupState:         store.CleanupPending,
		CreatedAt:            time.Now().UTC(),
	}
	if err := l.store.AppendLogEntry(ctx, entry); err != nil {
		logging.LogWith(ctx, l.logger).Warn("failed to append log entry",
			"step_id", result.StepID,
			"error", err.Error())
	}

	eventType := streaming.EventStepCompleted
	switch result.Status {
	case schema.StepError:
		eventType = streaming.EventStepFailed
	case schema.StepSkipped:
		eventType = streaming.EventStepSkipped
	}
	l.publish(ctx, streaming.StreamEvent{
		ExecutionID: executionID,
		TenantID:    logging.TenantID(ctx),
		StepID:      result.StepID,
		EventType:   eventType,
		Payload: map[string]any{
			"integration": result.Integration,
			"duration_ms": result.DurationMs,
		},
	})
}

// Finalize records the aggregate outcome of the execution.
func (l *ExecutionLog) Finalize(ctx context.Context, executionID string, status schema.ExecutionStatus, resourceCount int) {
	if err := l.store.FinalizeExecution(ctx, executionID, status, resourceCount, time.Now().UTC()); err != nil {
		logging.LogWith(ctx, l.logger).Warn("failed to finalize execution record",
			"status", string(status),
			"error", err.Error())
	}
	l.publish(ctx, streaming.StreamEvent{
		ExecutionID: executionID,
		TenantID:    logging.TenantID(ctx),
		EventType:   streaming.EventExecutionFinished,
		Payload: map[string]any{
			"status":         string(status),
			"resource_count": resourceCount,
		},
	})
}

// SummarizeOutput bounds stored output size. Small outputs are kept verbatim
// for debuggability; above the threshold each field is reduced to a short
// shape description ("string(128)", "array(3)", ...).
func SummarizeOutput(output map[string]any) map[string]any {
	if output == nil {
		return nil
	}
	raw, err := json.Marshal(output)
	if err == nil && len(raw) <= summarizeThreshold {
		return output
	}

	summary := make(map[string]any, len(output))
	for field, value := range output {
		summary[field] = describeValue(value)
	}
	return summary
}

func describeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string(%d)", len(v))
	case bool:
		return "bool"
	case float64, int, int64:
		return "number"
	case []any:
		return fmt.Sprintf("array(%d)", len(v))
	case map[string]any:
		return fmt.Sprintf("object(%d)", len(v))
	default:
		return fmt.Sprintf("%T", value)
	}
}
