// Package mcp exposes the orchestrator over the Model Context Protocol so
// agents can trigger, inspect and compensate scenario executions.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/pkg/schema"
)

// ScenarioRunner triggers and lists executions. Satisfied by the engine
// orchestrator.
type ScenarioRunner interface {
	Run(ctx context.Context, tenantID, scenarioName string, force bool) (*schema.ExecutionResult, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]*store.Execution, error)
}

// Cleaner compensates finished executions. Satisfied by the cleanup engine.
type Cleaner interface {
	Cleanup(ctx context.Context, tenantID, executionID string) (*schema.CleanupSummary, error)
}

// CatalogReader serves scenario definitions.
type CatalogReader interface {
	Get(name string) (*schema.ScenarioDefinition, bool)
	List() []*schema.ScenarioDefinition
}

// CronCalculator computes the next trigger time for a cron expression.
// Satisfied by the scheduler.
type CronCalculator interface {
	CalculateNextRun(cronExpr string, from time.Time) (time.Time, error)
}

// ScenarkServerDeps holds the dependencies for creating a ScenarkServer.
type ScenarkServerDeps struct {
	Runner  ScenarioRunner
	Cleaner Cleaner
	Catalog CatalogReader
	Store   store.Store
	Cron    CronCalculator
	Logger  *slog.Logger
}

// ScenarkServer wraps an MCP server with the scenario tool handlers.
type ScenarkServer struct {
	runner    ScenarioRunner
	cleaner   Cleaner
	catalog   CatalogReader
	store     store.Store
	cron      CronCalculator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewScenarkServer creates a ScenarkServer with all tools registered.
func NewScenarkServer(deps ScenarkServerDeps) *ScenarkServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ScenarkServer{
		runner:  deps.Runner,
		cleaner: deps.Cleaner,
		catalog: deps.Catalog,
		store:   deps.Store,
		cron:    deps.Cron,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"scenark",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Scenark executes declarative cross-system scenarios against sandbox tenants. Use scenario.run to trigger a scenario, scenario.cleanup to undo the resources an execution created, scenario.executions to list recent runs, scenario.catalog to browse available scenarios, and scenario.schedule to register a recurring run."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *ScenarkServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *ScenarkServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ScenarkServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: cleanupTool(), Handler: s.handleCleanup},
		{Tool: executionsTool(), Handler: s.handleExecutions},
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("scenario.run",
		mcp.WithDescription("Execute a scenario for a sandbox tenant"),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant to run the scenario for")),
		mcp.WithString("scenario", mcp.Required(), mcp.Description("Name of the scenario to execute")),
		mcp.WithBoolean("force", mcp.Description("Bypass the idempotency window and run again")),
	)
}

func cleanupTool() mcp.Tool {
	return mcp.NewTool("scenario.cleanup",
		mcp.WithDescription("Undo the external resources created by an execution"),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant that owns the execution")),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to compensate")),
	)
}

func executionsTool() mcp.Tool {
	return mcp.NewTool("scenario.executions",
		mcp.WithDescription("List a tenant's recent scenario executions"),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant to list executions for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of executions to return (default 20)")),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("scenario.catalog",
		mcp.WithDescription("List the available scenarios, or describe one by name"),
		mcp.WithString("name", mcp.Description("Scenario name to describe (omit to list all)")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("scenario.schedule",
		mcp.WithDescription("Register a recurring scenario run on a cron schedule"),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant to run the scenario for")),
		mcp.WithString("scenario", mcp.Required(), mcp.Description("Name of the scenario to schedule")),
		mcp.WithString("cron", mcp.Required(), mcp.Description("Cron expression (five fields, minute precision)")),
	)
}
