package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/pkg/schema"
)

// HTTPConfig configures the HTTP executor.
type HTTPConfig struct {
	MaxResponseBody int64
	Timeout         time.Duration
}

const (
	defaultMaxResponseBody = 4 * 1024 * 1024 // 4MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPExecutor executes provider actions as JSON-over-HTTP calls against the
// connection's base URL. The provider action name maps to the request path
// ("tracker.create_issue" → POST {base}/actions/tracker.create_issue).
type HTTPExecutor struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPExecutor creates an HTTPExecutor.
func NewHTTPExecutor(cfg HTTPConfig) *HTTPExecutor {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &HTTPExecutor{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, conn *connections.Handle, providerAction string, input map[string]any) (map[string]any, error) {
	if conn == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNonRetryable, "no connection for action %q", providerAction)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNonRetryable, "marshal input for %q: %s", providerAction, err.Error()).WithCause(err)
	}

	url := strings.TrimRight(conn.BaseURL, "/") + "/actions/" + providerAction
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNonRetryable, "build request for %q: %s", providerAction, err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if conn.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+conn.AuthToken)
	}
	for k, v := range conn.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// Transport failures are retryable.
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: %s", providerAction, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: read response: %s", providerAction, err.Error()).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return nil, schema.ErrorFromStatus(resp.StatusCode,
			fmt.Sprintf("%s returned %s: %s", providerAction, resp.Status, truncate(string(raw), 200)))
	}

	var parsed map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeNonRetryable, "%s: invalid JSON response: %s", providerAction, err.Error()).WithCause(err)
		}
	}

	return unwrapEnvelope(parsed), nil
}

// unwrapEnvelope peels up to two response wrapper layers: an outer
// success/error envelope ({"success": true, "data": {...}}) and a nested
// payload wrapper ({"data": {...}} or {"result": {...}}). Providers disagree
// on envelope shape, so the orchestrator core only ever sees the actual
// payload object.
func unwrapEnvelope(resp map[string]any) map[string]any {
	current := resp
	for i := 0; i < 2; i++ {
		inner, ok := innerPayload(current)
		if !ok {
			break
		}
		current = inner
	}
	return current
}

func innerPayload(m map[string]any) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	for _, key := range []string{"data", "result"} {
		if v, ok := m[key]; ok {
			if inner, ok := v.(map[string]any); ok {
				return inner, true
			}
		}
	}
	return nil, false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Executor = (*HTTPExecutor)(nil)
