package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scenark/scenark/internal/actions"
	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/internal/metrics"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/internal/streaming"
	"github.com/scenark/scenark/pkg/schema"
)

// CleanupEngine compensates a finished execution: it walks the execution log
// in reverse and invokes the registered undo action for every resource that
// has one. Cleanup is best-effort — resources without an undo action or an
// active connection are skipped, and per-resource failures never abort the
// sweep.
type CleanupEngine struct {
	store       store.Store
	undo        *actions.UndoRegistry
	executor    actions.Executor
	connections connections.Resolver
	hub         streaming.EventHub
	logger      *slog.Logger
}

// NewCleanupEngine creates a CleanupEngine.
func NewCleanupEngine(s store.Store, undo *actions.UndoRegistry, executor actions.Executor, resolver connections.Resolver, logger *slog.Logger) *CleanupEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupEngine{
		store:       s,
		undo:        undo,
		executor:    executor,
		connections: resolver,
		logger:      logger,
	}
}

// AttachHub streams cleanup outcomes to the hub. Call before the first sweep.
func (c *CleanupEngine) AttachHub(hub streaming.EventHub) {
	c.hub = hub
}

// Cleanup undoes the resources created by an execution. The execution must
// belong to the requesting tenant; an already-cleaned execution returns a
// no-op summary. The execution transitions to cleaned only when no undo
// attempt failed.
func (c *CleanupEngine) Cleanup(ctx context.Context, tenantID, executionID string) (*schema.CleanupSummary, error) {
	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", executionID).WithCause(err)
	}
	// Tenant mismatch is reported as not-found so execution ids are not
	// probeable across tenants.
	if exec.TenantID != tenantID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", executionID)
	}

	summary := &schema.CleanupSummary{ExecutionID: executionID}
	if exec.Status == schema.ExecutionCleaned {
		summary.AlreadyDone = true
		return summary, nil
	}

	ctx = logging.WithIDs(ctx, executionID, "", tenantID)

	// Entries arrive most recent first: undo order is the reverse of
	// creation order, so children are addressed before their parents.
	entries, err := c.store.ListCleanable(ctx, executionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load cleanable entries: %s", err.Error()).WithCause(err)
	}

	for _, entry := range entries {
		c.cleanupEntry(ctx, tenantID, entry, summary)
	}

	if summary.Failed == 0 {
		if err := c.store.MarkExecutionCleaned(ctx, executionID); err != nil {
			logging.LogWith(ctx, c.logger).Warn("failed to mark execution cleaned",
				"error", err.Error())
		}
	}

	logging.LogWith(ctx, c.logger).Info("cleanup sweep finished",
		"cleaned", summary.Cleaned,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	if c.hub != nil {
		_ = c.hub.Publish(ctx, streaming.StreamEvent{
			ExecutionID: executionID,
			TenantID:    tenantID,
			EventType:   streaming.EventCleanupFinished,
			Payload: map[string]any{
				"cleaned": summary.Cleaned,
				"failed":  summary.Failed,
				"skipped": summary.Skipped,
			},
		})
	}
	return summary, nil
}

func (c *CleanupEngine) cleanupEntry(ctx context.Context, tenantID string, entry *store.LogEntry, summary *schema.CleanupSummary) {
	log := logging.LogWith(ctx, c.logger)

	undoAction, ok := c.undo.UndoAction(entry.ExternalResourceType)
	if !ok {
		summary.Skipped++
		metrics.CleanupResourcesTotal.WithLabelValues("skipped").Inc()
		log.Debug("no undo action for resource type, skipping",
			"resource_type", entry.ExternalResourceType,
			"resource_id", entry.ExternalResourceID)
		return
	}

	conn, ok := c.connections.Resolve(ctx, tenantID, entry.Integration)
	if !ok {
		summary.Skipped++
		metrics.CleanupResourcesTotal.WithLabelValues("skipped").Inc()
		log.Debug("integration no longer connected, skipping",
			"integration", entry.Integration,
			"resource_id", entry.ExternalResourceID)
		return
	}

	_, err := c.executor.Execute(ctx, conn, undoAction, map[string]any{
		"id": entry.ExternalResourceID,
	})
	if err != nil {
		summary.Failed++
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("%s %s: %s", entry.ExternalResourceType, entry.ExternalResourceID, err.Error()))
		metrics.CleanupResourcesTotal.WithLabelValues("failed").Inc()
		log.Warn("undo action failed",
			"undo_action", undoAction,
			"resource_id", entry.ExternalResourceID,
			"error", err.Error())
		return
	}

	if err := c.store.MarkEntryCleaned(ctx, entry.ID); err != nil {
		log.Warn("failed to mark log entry cleaned",
			"entry_id", entry.ID,
			"error", err.Error())
	}
	summary.Cleaned++
	metrics.CleanupResourcesTotal.WithLabelValues("cleaned").Inc()
}
