package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sentinel-hq/aegis/pkg/proxy/types"
)

// Queues serves GET /admin/queues[?model=]. Without a model it returns
// every model's queue state; with one, that model's state alone.
func (h *Handler) Queues(w http.ResponseWriter, r *http.Request) {
	if model := r.URL.Query().Get("model"); model != "" {
		state, ok := h.admission.Stats(model)
		if !ok {
			writeError(w, types.NewErrorResponse("unknown model", types.ErrorTypeInvalidRequest, "model", "model_not_seen"))
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": h.admission.AllStats()})
}

// CacheStats serves GET /admin/cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// CacheClear serves POST /admin/cache/clear.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "cache clear failed", "error", err)
		writeError(w, types.NewServerError("cache clear failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// limitsRequest is the body of POST /admin/limits. An empty model updates
// the defaults applied to models seen for the first time.
type limitsRequest struct {
	Model         string `json:"model"`
	ParallelLimit int64  `json:"parallel_limit"`
	QueueLimit    int64  `json:"queue_limit"`
}

// UpdateLimits serves POST /admin/limits.
func (h *Handler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var req limitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewInvalidRequestError("invalid JSON body", "", "invalid_json"))
		return
	}
	if req.ParallelLimit < 1 {
		writeError(w, types.NewInvalidRequestError("parallel_limit must be at least 1", "parallel_limit", "invalid_value"))
		return
	}
	if req.QueueLimit < 0 {
		writeError(w, types.NewInvalidRequestError("queue_limit must not be negative", "queue_limit", "invalid_value"))
		return
	}

	if req.Model == "" {
		h.admission.UpdateDefaultLimits(req.ParallelLimit, req.QueueLimit)
	} else {
		h.admission.UpdateLimits(req.Model, req.ParallelLimit, req.QueueLimit)
	}

	slog.InfoContext(r.Context(), "admission limits updated",
		"model", req.Model,
		"parallel_limit", req.ParallelLimit,
		"queue_limit", req.QueueLimit,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// resetRequest is the body of POST /admin/reset. An empty or absent model
// resets every model's statistics.
type resetRequest struct {
	Model string `json:"model"`
}

// ResetStats serves POST /admin/reset.
func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, types.NewInvalidRequestError("invalid JSON body", "", "invalid_json"))
			return
		}
	}

	h.admission.Reset(req.Model)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// AuditEvents serves GET /admin/audit[?limit=], the most recent block and
// rejection events.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, types.NewErrorResponse("audit recording is disabled", types.ErrorTypeInvalidRequest, "", "audit_disabled"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, types.NewInvalidRequestError("limit must be a positive integer", "limit", "invalid_value"))
			return
		}
		limit = n
	}

	events, err := h.audit.List(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit list failed", "error", err)
		writeError(w, types.NewServerError("audit list failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":  events,
		"dropped": h.audit.Dropped(),
	})
}
