// Package handlers implements the proxy's HTTP endpoints: the guarded
// inference routes for both dialects, unguarded passthrough, health, and
// the admin surface.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"sentinel-hq/aegis/pkg/admission"
	"sentinel-hq/aegis/pkg/audit"
	"sentinel-hq/aegis/pkg/cache"
	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/proxy/types"
	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/upstream/ollama"
	"sentinel-hq/aegis/pkg/upstream/openai"
)

// maxRequestBody bounds guarded request bodies.
const maxRequestBody = 10 << 20

// Handler holds the components the endpoints operate on.
type Handler struct {
	guard     *guard.Guard
	openai    *openai.Client
	ollama    *ollama.Client
	admission *admission.Controller
	cache     cache.Store
	pipeline  *scan.Pipeline
	audit     *audit.Recorder
}

// New creates the handler set.
func New(g *guard.Guard, oa *openai.Client, ol *ollama.Client, adm *admission.Controller, store cache.Store, pipeline *scan.Pipeline, rec *audit.Recorder) *Handler {
	return &Handler{
		guard:     g,
		openai:    oa,
		ollama:    ol,
		admission: adm,
		cache:     store,
		pipeline:  pipeline,
		audit:     rec,
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// writeError writes an error envelope with its mapped status.
func writeError(w http.ResponseWriter, resp *types.ErrorResponse) {
	writeJSON(w, resp.Error.HTTPStatusCode(), resp)
}

// writeGuardError maps a guard taxonomy error onto the wire.
func writeGuardError(w http.ResponseWriter, err error) {
	resp, status := types.FromGuardError(err)
	writeJSON(w, status, resp)
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, types.NewInvalidRequestError("could not read request body", "", "invalid_body"))
		return nil, false
	}
	return body, true
}
