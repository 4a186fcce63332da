package panel

import (
	"net/http"
	"strconv"

	"github.com/scenark/scenark/internal/diagram"
)

const defaultListLimit = 50

func (s *PanelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		// Degraded, not down: runs still work with the fallback store.
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *PanelServer) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	executions, err := s.deps.Store.ListExecutions(r.Context(), tenantID, limit)
	if err != nil {
		s.deps.Logger.Error("list executions failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": executions,
		"count":      len(executions),
	})
}

func (s *PanelServer) handleExecutionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, err := s.deps.Store.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *PanelServer) handleExecutionLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Store.GetExecution(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	entries, err := s.deps.Store.ListLogEntries(r.Context(), id)
	if err != nil {
		s.deps.Logger.Error("list log entries failed", "execution_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load execution log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"entries":      entries,
		"count":        len(entries),
	})
}

func (s *PanelServer) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	defs := s.deps.Catalog.List()
	summaries := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, map[string]any{
			"name":                  def.Name,
			"description":           def.Description,
			"required_integrations": def.RequiredIntegrations,
			"steps":                 len(def.Steps),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": summaries, "count": len(summaries)})
}

// handleScenarioDetail returns the scenario definition, or a rendered
// dependency diagram when ?format=mermaid or ?format=ascii is given.
func (s *PanelServer) handleScenarioDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := s.deps.Catalog.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "scenario not found")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, def)
	case "mermaid":
		writeText(w, diagram.RenderMermaid(diagram.Build(def)))
	case "ascii":
		writeText(w, diagram.RenderASCII(diagram.Build(def)))
	default:
		writeError(w, http.StatusBadRequest, "unknown format "+strconv.Quote(format))
	}
}
