package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/expressions"
	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/internal/metrics"
	"github.com/scenark/scenark/internal/payload"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/internal/streaming"
	"github.com/scenark/scenark/pkg/schema"
)

// ScenarioCatalog resolves a scenario name to its definition.
type ScenarioCatalog interface {
	Get(name string) (*schema.ScenarioDefinition, bool)
}

// Config controls the orchestrator's preconditions and pacing.
type Config struct {
	// Enabled is the environment-level feature flag. When false every run
	// is rejected before touching the store.
	Enabled bool

	// AllowedTenants is the explicit sandbox allow-list. It is consulted
	// alongside the persisted sandbox flag, and alone when flag storage is
	// not provisioned.
	AllowedTenants []string

	// DailyQuota caps executions per tenant per UTC day.
	DailyQuota int

	// StepDelay is the mandatory pause between consecutive executed steps.
	StepDelay time.Duration
}

// DefaultConfig returns the production precondition settings.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DailyQuota: 20,
		StepDelay:  500 * time.Millisecond,
	}
}

// Orchestrator is the top-level control loop: it validates preconditions,
// consults the idempotency tracker, walks the scenario's steps in declared
// order and finalizes the execution record.
type Orchestrator struct {
	config      Config
	store       store.Store
	catalog     ScenarioCatalog
	connections connections.Resolver
	payload     *payload.Resolver
	runner      *StepRunner
	log         *ExecutionLog
	tracker     *IdempotencyTracker
	conditions  *expressions.CELEngine
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(
	cfg Config,
	s store.Store,
	catalog ScenarioCatalog,
	resolver connections.Resolver,
	payloadResolver *payload.Resolver,
	runner *StepRunner,
	conditions *expressions.CELEngine,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:      cfg,
		store:       s,
		catalog:     catalog,
		connections: resolver,
		payload:     payloadResolver,
		runner:      runner,
		log:         NewExecutionLog(s, logger),
		tracker:     NewIdempotencyTracker(s),
		conditions:  conditions,
		logger:      logger,
		now:         time.Now,
	}
}

// AttachHub streams execution lifecycle events to the hub. Call before the
// first run.
func (o *Orchestrator) AttachHub(hub streaming.EventHub) {
	o.log.AttachHub(hub)
}

// Run executes a scenario for a tenant. Precondition failures return a
// typed error and never create an execution record. An idempotency hit
// returns the prior execution's identifier with Duplicate set instead of
// running again. An unexpected panic from a collaborator is converted into
// a failed ExecutionResult carrying the message; it never propagates.
func (o *Orchestrator) Run(ctx context.Context, tenantID, scenarioName string, force bool) (result *schema.ExecutionResult, err error) {
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			logging.LogWith(ctx, o.logger).Error("execution aborted by panic",
				"scenario", scenarioName,
				"panic", fmt.Sprint(r))
			result = &schema.ExecutionResult{
				TenantID:     tenantID,
				ScenarioName: scenarioName,
				Status:       schema.ExecutionFailed,
				Error:        fmt.Sprintf("unexpected failure: %v", r),
				StartedAt:    start,
			}
			err = nil
		}
	}()

	scenario, executionID, dup, err := o.setup(ctx, tenantID, scenarioName, force)
	if err != nil {
		if serr, ok := err.(*schema.ScenarkError); ok {
			metrics.PreconditionFailuresTotal.WithLabelValues(serr.Code).Inc()
		}
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	ctx = logging.WithIDs(ctx, executionID, "", tenantID)
	logging.LogWith(ctx, o.logger).Info("execution started",
		"scenario", scenarioName,
		"steps", len(scenario.Steps))

	result = o.runSteps(ctx, tenantID, executionID, scenario)
	metrics.ExecutionsTotal.WithLabelValues(scenarioName, string(result.Status)).Inc()

	logging.LogWith(ctx, o.logger).Info("execution finished",
		"status", string(result.Status),
		"succeeded", result.SucceededSteps,
		"failed", result.FailedSteps,
		"skipped", result.SkippedSteps,
		"resources", result.ResourceCount)
	return result, nil
}

// setup runs the precondition chain and creates the execution record.
// Panics from collaborators surface to Run's recover, which reports them
// as a failed result.
func (o *Orchestrator) setup(ctx context.Context, tenantID, scenarioName string, force bool) (scenario *schema.ScenarioDefinition, executionID string, dup *schema.ExecutionResult, err error) {
	if !o.config.Enabled {
		return nil, "", nil, schema.NewError(schema.ErrCodeDisabled, "scenario execution is disabled in this environment")
	}

	if err := o.checkSandbox(ctx, tenantID); err != nil {
		return nil, "", nil, err
	}

	if err := o.checkQuota(ctx, tenantID); err != nil {
		return nil, "", nil, err
	}

	scenario, ok := o.catalog.Get(scenarioName)
	if !ok {
		return nil, "", nil, schema.NewErrorf(schema.ErrCodeInvalidScenario, "unknown scenario %q", scenarioName)
	}

	if missing := connections.Missing(ctx, o.connections, tenantID, scenario.RequiredIntegrations); len(missing) > 0 {
		return nil, "", nil, schema.NewErrorf(schema.ErrCodeMissingIntegrations,
			"missing integrations: %v", missing).
			WithDetails(map[string]any{"missing": missing})
	}

	hash := o.tracker.Fingerprint(tenantID, scenarioName)
	if !force {
		existing, err := o.tracker.FindExisting(ctx, tenantID, hash)
		if err != nil {
			return nil, "", nil, schema.NewErrorf(schema.ErrCodeStore, "idempotency lookup failed: %s", err.Error()).WithCause(err)
		}
		if existing != nil {
			logging.LogWith(ctx, o.logger).Info("duplicate execution suppressed",
				"scenario", scenarioName,
				"prior_execution_id", existing.ID)
			return nil, "", &schema.ExecutionResult{
				ExecutionID:   existing.ID,
				TenantID:      tenantID,
				ScenarioName:  scenarioName,
				Status:        existing.Status,
				Duplicate:     true,
				ResourceCount: existing.ResourceCount,
				StartedAt:     existing.CreatedAt,
				CompletedAt:   existing.CompletedAt,
			}, nil
		}
	}

	executionID = o.log.CreateExecution(ctx, tenantID, scenarioName, hash)
	return scenario, executionID, nil, nil
}

// checkSandbox authorizes the tenant. The persisted flag and the explicit
// allow-list are both consulted; when flag storage is not provisioned the
// allow-list alone decides.
func (o *Orchestrator) checkSandbox(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return schema.NewError(schema.ErrCodeOrgNotFound, "tenant id is required")
	}
	if slices.Contains(o.config.AllowedTenants, tenantID) {
		return nil
	}

	flagged, err := o.store.IsSandboxTenant(ctx, tenantID)
	if err != nil {
		logging.LogWith(ctx, o.logger).Warn("sandbox flag storage unavailable, falling back to allow-list",
			"error", err.Error())
		return schema.NewErrorf(schema.ErrCodeNotSandboxed, "tenant %q is not an authorized sandbox", tenantID)
	}
	if !flagged {
		return schema.NewErrorf(schema.ErrCodeNotSandboxed, "tenant %q is not an authorized sandbox", tenantID)
	}
	return nil
}

// checkQuota enforces the per-tenant daily execution cap.
func (o *Orchestrator) checkQuota(ctx context.Context, tenantID string) error {
	if o.config.DailyQuota <= 0 {
		return nil
	}
	dayStart := o.now().UTC().Truncate(24 * time.Hour)
	count, err := o.store.CountExecutionsSince(ctx, tenantID, dayStart)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "quota check failed: %s", err.Error()).WithCause(err)
	}
	if count >= o.config.DailyQuota {
		return schema.NewErrorf(schema.ErrCodeRateLimited,
			"daily execution quota reached (%d/%d)", count, o.config.DailyQuota).
			WithDetails(map[string]any{"quota": o.config.DailyQuota, "used": count})
	}
	return nil
}

// runSteps walks the scenario in declared order, skipping steps whose
// dependencies did not succeed, and finalizes the execution record.
func (o *Orchestrator) runSteps(ctx context.Context, tenantID, executionID string, scenario *schema.ScenarioDefinition) *schema.ExecutionResult {
	start := o.now()
	scope := expressions.NewScope(map[string]any{
		"id":        executionID,
		"tenant_id": tenantID,
		"scenario":  scenario.Name,
	})

	results := make(map[string]schema.StepResult, len(scenario.Steps))
	ordered := make([]schema.StepResult, 0, len(scenario.Steps))
	executed := 0

	for _, step := range scenario.Steps {
		stepCtx := logging.WithIDs(ctx, executionID, step.ID, tenantID)

		if unmet := unmetDependency(step, results); unmet != "" {
			result := skippedResult(step, fmt.Sprintf("dependency %q did not succeed", unmet))
			o.log.Append(stepCtx, executionID, result)
			results[step.ID] = result
			ordered = append(ordered, result)
			continue
		}

		if step.Condition != "" {
			proceed, err := o.conditions.EvaluateBool(stepCtx, step.Condition, scope.Data())
			if err != nil {
				result := errorResult(step, fmt.Sprintf("condition evaluation failed: %s", err.Error()))
				o.log.Append(stepCtx, executionID, result)
				results[step.ID] = result
				ordered = append(ordered, result)
				continue
			}
			if !proceed {
				result := skippedResult(step, "condition evaluated to false")
				o.log.Append(stepCtx, executionID, result)
				results[step.ID] = result
				ordered = append(ordered, result)
				continue
			}
		}

		// Backpressure against third-party rate limits.
		if executed > 0 {
			if err := waitBackoff(stepCtx, o.config.StepDelay); err != nil {
				result := errorResult(step, fmt.Sprintf("execution aborted: %s", err.Error()))
				o.log.Append(stepCtx, executionID, result)
				results[step.ID] = result
				ordered = append(ordered, result)
				continue
			}
		}
		executed++

		conn, _ := o.connections.Resolve(stepCtx, tenantID, step.Integration)
		input := o.payload.Resolve(stepCtx, step, scope)

		result, output := o.runner.Execute(stepCtx, conn, step, input)
		o.log.Append(stepCtx, executionID, result)
		results[step.ID] = result
		ordered = append(ordered, result)

		if result.Status == schema.StepSuccess {
			scope.AddStepOutput(step.ID, output)
		}
	}

	return o.finalize(ctx, tenantID, executionID, scenario.Name, start, ordered)
}

// finalize aggregates step results, persists the final status and builds the
// returned ExecutionResult.
func (o *Orchestrator) finalize(ctx context.Context, tenantID, executionID, scenarioName string, start time.Time, steps []schema.StepResult) *schema.ExecutionResult {
	var succeeded, failed, skipped, resources int
	for _, r := range steps {
		switch r.Status {
		case schema.StepSuccess:
			succeeded++
			if r.ExternalResourceID != "" {
				resources++
			}
		case schema.StepError:
			failed++
		case schema.StepSkipped:
			skipped++
		}
	}

	status := schema.ExecutionCompleted
	switch {
	case failed > 0 && succeeded == 0:
		status = schema.ExecutionFailed
	case failed > 0:
		status = schema.ExecutionPartial
	}

	o.log.Finalize(ctx, executionID, status, resources)

	completed := o.now()
	return &schema.ExecutionResult{
		ExecutionID:    executionID,
		TenantID:       tenantID,
		ScenarioName:   scenarioName,
		Status:         status,
		Steps:          steps,
		SucceededSteps: succeeded,
		FailedSteps:    failed,
		SkippedSteps:   skipped,
		ResourceCount:  resources,
		DurationMs:     completed.Sub(start).Milliseconds(),
		StartedAt:      start,
		CompletedAt:    &completed,
	}
}

// ListRecent returns the tenant's most recent executions.
func (o *Orchestrator) ListRecent(ctx context.Context, tenantID string, limit int) ([]*store.Execution, error) {
	return o.store.ListExecutions(ctx, tenantID, limit)
}

// unmetDependency returns the first dependency that is missing or did not
// succeed. A dependency that was never reached counts the same as a failed
// one.
func unmetDependency(step schema.StepDefinition, results map[string]schema.StepResult) string {
	for _, dep := range step.DependsOn {
		r, ok := results[dep]
		if !ok || r.Status != schema.StepSuccess {
			return dep
		}
	}
	return ""
}

func skippedResult(step schema.StepDefinition, reason string) schema.StepResult {
	return schema.StepResult{
		StepID:         step.ID,
		Integration:    step.Integration,
		ActionName:     step.ActionName,
		ProviderAction: step.ProviderAction,
		Status:         schema.StepSkipped,
		Error:          reason,
	}
}

func errorResult(step schema.StepDefinition, message string) schema.StepResult {
	return schema.StepResult{
		StepID:         step.ID,
		Integration:    step.Integration,
		ActionName:     step.ActionName,
		ProviderAction: step.ProviderAction,
		Status:         schema.StepError,
		Error:          message,
	}
}
