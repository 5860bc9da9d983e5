package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health serves GET /health, the liveness probe. It answers as long as the
// process is serving requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready serves GET /ready, the readiness probe. Ready means the backend is
// reachable; the cache is not part of readiness since the proxy degrades
// to the local backend on its own.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.ollama.Version(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "backend unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
