// Package panel serves the admin surface: a JSON API over executions and
// scenarios, a live SSE event stream, and Prometheus metrics.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/internal/streaming"
	"github.com/scenark/scenark/pkg/schema"
)

// CatalogReader serves scenario definitions to the panel.
type CatalogReader interface {
	Get(name string) (*schema.ScenarioDefinition, bool)
	List() []*schema.ScenarioDefinition
}

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Store   store.Store
	Catalog CatalogReader
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// PanelServer serves the admin panel routes.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.handleExecutionDetail)
	mux.HandleFunc("GET /api/executions/{id}/log", s.handleExecutionLog)
	mux.HandleFunc("GET /api/scenarios", s.handleListScenarios)
	mux.HandleFunc("GET /api/scenarios/{name}", s.handleScenarioDetail)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/executions/{id}", s.handleSSEExecution)

	return mux
}
