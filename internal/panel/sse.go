package panel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/scenark/scenark/internal/streaming"
)

// handleSSEGlobal streams all events to the client via Server-Sent Events.
// An optional tenant_id query parameter narrows the stream to one tenant.
func (s *PanelServer) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{TenantID: r.URL.Query().Get("tenant_id")})
}

// handleSSEExecution streams events for a specific execution.
func (s *PanelServer) handleSSEExecution(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")
	s.serveSSE(w, r, streaming.EventFilter{ExecutionID: executionID})
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
