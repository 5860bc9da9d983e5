package handlers

import (
	"log/slog"
	"net/http"

	"sentinel-hq/aegis/pkg/proxy/types"
	"sentinel-hq/aegis/pkg/upstream"
)

// Models serves GET /v1/models by relaying the backend's model list.
// Passthrough routes skip scanning and admission: they carry metadata,
// not generated content.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, func() (*upstream.Response, error) {
		return h.openai.Models(r.Context())
	})
}

// Tags serves GET /api/tags by relaying the backend's installed models.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, func() (*upstream.Response, error) {
		return h.ollama.Tags(r.Context())
	})
}

// Version serves GET /api/version by relaying the backend version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, func() (*upstream.Response, error) {
		return h.ollama.Version(r.Context())
	})
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, fetch func() (*upstream.Response, error)) {
	resp, err := fetch()
	if err != nil {
		slog.WarnContext(r.Context(), "passthrough failed",
			"path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway,
			types.NewErrorResponse("The backend failed to serve the request.", types.ErrorTypeBadGateway, "", "upstream_error"))
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
