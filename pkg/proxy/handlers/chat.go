package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/proxy/middleware"
	"sentinel-hq/aegis/pkg/proxy/types"
	"sentinel-hq/aegis/pkg/upstream"
	"sentinel-hq/aegis/pkg/upstream/openai"
)

// ChatCompletions serves POST /v1/chat/completions, the guarded
// OpenAI-dialect route.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	model := openai.RequestModel(body)
	if model == "" {
		writeError(w, types.NewInvalidRequestError("model is required", "model", "missing_field"))
		return
	}

	req := &guard.Request{
		RequestID: middleware.GetRequestID(r.Context()),
		Dialect:   h.openai.Name(),
		Model:     model,
		Text:      openai.RequestText(body),
		Forward: func(ctx context.Context) (*upstream.Response, error) {
			return h.openai.Forward(ctx, body)
		},
		OpenStream: func(ctx context.Context) (*upstream.Stream, error) {
			return h.openai.ForwardStreaming(ctx, body)
		},
		ResponseText: openai.ResponseText,
		ReplaceText:  openai.ReplaceResponseText,
	}

	if openai.RequestStream(body) {
		framer := newSSEFramer(w, model)
		if _, err := h.guard.DoStream(r.Context(), req, framer); err != nil {
			writeGuardError(w, err)
		}
		return
	}

	result, err := h.guard.Do(r.Context(), req)
	if err != nil {
		writeGuardError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.Response.ContentType)
	w.WriteHeader(result.Response.StatusCode)
	w.Write(result.Response.Body)
}

// sseFramer frames guarded stream output as OpenAI SSE. Headers are sent
// lazily on the first write, so pre-stream failures can still produce a
// plain JSON error response.
type sseFramer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	model   string
	id      string
	started bool
}

func newSSEFramer(w http.ResponseWriter, model string) *sseFramer {
	flusher, _ := w.(http.Flusher)
	return &sseFramer{
		w:       w,
		flusher: flusher,
		model:   model,
		id:      "chatcmpl-" + uuid.NewString(),
	}
}

func (f *sseFramer) begin() {
	if f.started {
		return
	}
	f.started = true
	f.w.Header().Set("Content-Type", "text/event-stream")
	f.w.Header().Set("Cache-Control", "no-cache")
	f.w.Header().Set("X-Accel-Buffering", "no")
	f.w.WriteHeader(http.StatusOK)
}

func (f *sseFramer) flush() {
	if f.flusher != nil {
		f.flusher.Flush()
	}
}

// WriteChunk implements guard.StreamFramer.
func (f *sseFramer) WriteChunk(raw []byte) error {
	f.begin()
	if _, err := fmt.Fprintf(f.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	f.flush()
	return nil
}

// WriteBlocked implements guard.StreamFramer. The terminal chunk delivers
// the localized message as the final delta with finish_reason
// "content_filter", plus a machine-readable error object, then the
// terminator.
func (f *sseFramer) WriteBlocked(message, code string) error {
	f.begin()
	chunk := map[string]any{
		"id":     f.id,
		"object": "chat.completion.chunk",
		"model":  f.model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"content": message},
			"finish_reason": "content_filter",
		}},
		"error": map[string]any{
			"message": message,
			"type":    types.ErrorTypePermissionDenied,
			"code":    code,
		},
	}
	if err := f.writeJSONFrame(chunk); err != nil {
		return err
	}
	return f.WriteDone()
}

// WriteFailure implements guard.StreamFramer.
func (f *sseFramer) WriteFailure(message string) error {
	f.begin()
	chunk := map[string]any{
		"id":     f.id,
		"object": "chat.completion.chunk",
		"model":  f.model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": "error",
		}},
		"error": map[string]any{
			"message": message,
			"type":    types.ErrorTypeBadGateway,
			"code":    guard.CodeUpstreamError,
		},
	}
	if err := f.writeJSONFrame(chunk); err != nil {
		return err
	}
	return f.WriteDone()
}

// WriteDone implements guard.StreamFramer.
func (f *sseFramer) WriteDone() error {
	f.begin()
	if _, err := fmt.Fprint(f.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	f.flush()
	return nil
}

func (f *sseFramer) writeJSONFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.WriteChunk(data)
}
