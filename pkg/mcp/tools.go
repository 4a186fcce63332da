package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/scenark/scenark/internal/store"
)

const defaultExecutionLimit = 20

func (s *ScenarkServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scenario, err := req.RequireString("scenario")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	force := req.GetBool("force", false)

	result, err := s.runner.Run(ctx, tenantID, scenario, force)
	if err != nil {
		s.logger.Warn("scenario run rejected",
			slog.String("tenant_id", tenantID),
			slog.String("scenario", scenario),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return marshalResult(result)
}

func (s *ScenarkServer) handleCleanup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary, err := s.cleaner.Cleanup(ctx, tenantID, executionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return marshalResult(summary)
}

func (s *ScenarkServer) handleExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultExecutionLimit)
	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	executions, err := s.runner.ListRecent(ctx, tenantID, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return marshalResult(map[string]any{
		"tenant_id":  tenantID,
		"executions": executions,
		"count":      len(executions),
	})
}

func (s *ScenarkServer) handleCatalog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := req.GetString("name", ""); name != "" {
		def, ok := s.catalog.Get(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown scenario %q", name)), nil
		}
		return marshalResult(def)
	}

	defs := s.catalog.List()
	summaries := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, map[string]any{
			"name":                  def.Name,
			"description":           def.Description,
			"required_integrations": def.RequiredIntegrations,
			"steps":                 len(def.Steps),
		})
	}

	return marshalResult(map[string]any{"scenarios": summaries, "count": len(summaries)})
}

func (s *ScenarkServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scenario, err := req.RequireString("scenario")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cronExpr, err := req.RequireString("cron")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, ok := s.catalog.Get(scenario); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown scenario %q", scenario)), nil
	}

	now := time.Now().UTC()
	nextRun, err := s.cron.CalculateNextRun(cronExpr, now)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	run := &store.ScheduledRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		ScenarioName:   scenario,
		CronExpression: cronExpr,
		Enabled:        true,
		NextRunAt:      &nextRun,
		CreatedAt:      now,
	}
	if err := s.store.CreateScheduledRun(ctx, run); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to persist schedule: %v", err)), nil
	}

	s.logger.Info("scheduled recurring run",
		slog.String("run_id", run.ID),
		slog.String("tenant_id", tenantID),
		slog.String("scenario", scenario),
		slog.String("cron", cronExpr),
	)

	return marshalResult(run)
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
