package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/scenark/scenark/internal/actions"
	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/expressions"
	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/internal/metrics"
	"github.com/scenark/scenark/pkg/schema"
)

// StepRunner executes one step through the Action Executor with bounded
// retry and backoff, then extracts the created-resource identifier from the
// provider response.
type StepRunner struct {
	executor actions.Executor
	paths    *expressions.PathExtractor
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewStepRunner creates a StepRunner.
func NewStepRunner(executor actions.Executor, policy RetryPolicy, logger *slog.Logger) *StepRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepRunner{
		executor: executor,
		paths:    expressions.NewPathExtractor(),
		policy:   policy,
		logger:   logger,
	}
}

// Execute runs the step and returns its result plus the raw provider output
// for payload resolution in later steps. The result's Data field carries the
// summarized copy; raw output is never persisted.
func (r *StepRunner) Execute(ctx context.Context, conn *connections.Handle, step schema.StepDefinition, input map[string]any) (schema.StepResult, map[string]any) {
	start := time.Now()
	log := logging.LogWith(ctx, r.logger)

	output, err := r.executeWithRetry(ctx, conn, step, input)

	result := schema.StepResult{
		StepID:         step.ID,
		Integration:    step.Integration,
		ActionName:     step.ActionName,
		ProviderAction: step.ProviderAction,
		DurationMs:     time.Since(start).Milliseconds(),
	}

	if err != nil {
		result.Status = schema.StepError
		result.Error = err.Error()
		metrics.StepDurationSeconds.WithLabelValues(step.Integration, string(schema.StepError)).
			Observe(time.Since(start).Seconds())
		log.Warn("step failed",
			"provider_action", step.ProviderAction,
			"error", err.Error())
		return result, nil
	}

	result.Status = schema.StepSuccess
	result.Data = SummarizeOutput(output)
	if step.ResourceIDPath != "" {
		if id, ok := r.paths.ExtractString(ctx, step.ResourceIDPath, output); ok {
			result.ExternalResourceID = id
			result.ExternalResourceType = step.ResourceType
		} else {
			log.Debug("resource id path did not resolve",
				"path", step.ResourceIDPath,
				"provider_action", step.ProviderAction)
		}
	}
	metrics.StepDurationSeconds.WithLabelValues(step.Integration, string(schema.StepSuccess)).
		Observe(time.Since(start).Seconds())
	return result, output
}

// executeWithRetry invokes the executor up to 1+MaxRetries times. Terminal
// errors abort immediately without consuming the remaining retry budget.
func (r *StepRunner) executeWithRetry(ctx context.Context, conn *connections.Handle, step schema.StepDefinition, input map[string]any) (map[string]any, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.StepRetriesTotal.Inc()
			if err := waitBackoff(ctx, r.policy.Backoff(attempt-1)); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "step %s aborted: %s", step.ID, err.Error()).
					WithStep(step.ID).WithCause(err)
			}
			logging.LogWith(ctx, r.logger).Info("retrying step",
				"attempt", attempt+1,
				"max_attempts", r.policy.MaxRetries+1,
				"provider_action", step.ProviderAction)
		}

		output, err := r.executor.Execute(ctx, conn, step.ProviderAction, input)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNonRetryable, "step %s: %s", step.ID, err.Error()).
				WithStep(step.ID).WithCause(err)
		}
	}

	return nil, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"step %s failed after %d attempts: %s", step.ID, r.policy.MaxRetries+1, lastErr.Error()).
		WithStep(step.ID).WithCause(lastErr)
}
