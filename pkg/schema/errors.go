package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeDisabled            = "DISABLED"
	ErrCodeConfig              = "CONFIG_ERROR"
	ErrCodeNotSandboxed        = "NOT_SANDBOXED"
	ErrCodeOrgNotFound         = "ORG_NOT_FOUND"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInvalidScenario     = "INVALID_SCENARIO"
	ErrCodeMissingIntegrations = "MISSING_INTEGRATIONS"
	ErrCodeDuplicateExecution  = "DUPLICATE_EXECUTION"
	ErrCodeStepFailed          = "STEP_FAILED"
	ErrCodeRetryExhausted      = "RETRY_EXHAUSTED"
	ErrCodeNonRetryable        = "NON_RETRYABLE"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeExecution           = "EXECUTION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeCycleDetected       = "CYCLE_DETECTED"
	ErrCodeInterpolation       = "INTERPOLATION_ERROR"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeVault               = "VAULT_ERROR"
)

// ScenarkError is the structured error type for all scenark operations.
type ScenarkError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ScenarkError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ScenarkError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ScenarkError.
func NewError(code, message string) *ScenarkError {
	return &ScenarkError{Code: code, Message: message}
}

// NewErrorf creates a new ScenarkError with a formatted message.
func NewErrorf(code, format string, args ...any) *ScenarkError {
	return &ScenarkError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *ScenarkError) WithStep(stepID string) *ScenarkError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *ScenarkError) WithCause(err error) *ScenarkError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ScenarkError) WithDetails(details map[string]any) *ScenarkError {
	e.Details = details
	return e
}

// IsRetryable reports whether the error's code permits another attempt.
// Transport failures and provider 5xx/429 map to retryable codes; other
// provider 4xx responses map to NON_RETRYABLE and abort immediately.
func (e *ScenarkError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeExecution, ErrCodeStepFailed, ErrCodeStore, ErrCodeRetryExhausted:
		return true
	default:
		return false
	}
}

// ErrorFromStatus maps an HTTP response status to a categorized error.
// 5xx and 429 are retryable; any other 4xx is terminal.
func ErrorFromStatus(status int, message string) *ScenarkError {
	code := ErrCodeExecution
	if status >= 400 && status < 500 && status != 429 {
		code = ErrCodeNonRetryable
	}
	return NewError(code, message).WithDetails(map[string]any{"status": status})
}
