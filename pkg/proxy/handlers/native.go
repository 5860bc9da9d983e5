package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/proxy/middleware"
	"sentinel-hq/aegis/pkg/proxy/types"
	"sentinel-hq/aegis/pkg/upstream"
	"sentinel-hq/aegis/pkg/upstream/ollama"
)

// NativeChat serves POST /api/chat, the guarded native-dialect
// conversational route.
func (h *Handler) NativeChat(w http.ResponseWriter, r *http.Request) {
	h.serveNative(w, r, ollama.ChatPath)
}

// NativeGenerate serves POST /api/generate, the guarded native-dialect
// single-prompt route.
func (h *Handler) NativeGenerate(w http.ResponseWriter, r *http.Request) {
	h.serveNative(w, r, ollama.GeneratePath)
}

func (h *Handler) serveNative(w http.ResponseWriter, r *http.Request, path string) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	model := ollama.RequestModel(body)
	if model == "" {
		writeError(w, types.NewInvalidRequestError("model is required", "model", "missing_field"))
		return
	}

	req := &guard.Request{
		RequestID: middleware.GetRequestID(r.Context()),
		Dialect:   h.ollama.Name(),
		Model:     model,
		Text:      ollama.RequestText(body),
		Forward: func(ctx context.Context) (*upstream.Response, error) {
			return h.ollama.Forward(ctx, path, body)
		},
		OpenStream: func(ctx context.Context) (*upstream.Stream, error) {
			return h.ollama.ForwardStreaming(ctx, path, body)
		},
		ResponseText: ollama.ResponseText,
		ReplaceText:  ollama.ReplaceResponseText,
	}

	if ollama.RequestStream(body) {
		framer := newNDJSONFramer(w, model, path == ollama.ChatPath)
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

// ndjsonFramer frames guarded stream output as the native dialect's
// newline-delimited JSON. The backend's own final frame is relayed as a
// normal chunk, so WriteDone has nothing to add; synthetic terminal frames
// (block, failure) carry "done":true themselves.
type ndjsonFramer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	model   string
	chat    bool
	started bool
}

func newNDJSONFramer(w http.ResponseWriter, model string, chat bool) *ndjsonFramer {
	flusher, _ := w.(http.Flusher)
	return &ndjsonFramer{w: w, flusher: flusher, model: model, chat: chat}
}

func (f *ndjsonFramer) begin() {
	if f.started {
		return
	}
	f.started = true
	f.w.Header().Set("Content-Type", "application/x-ndjson")
	f.w.Header().Set("Cache-Control", "no-cache")
	f.w.WriteHeader(http.StatusOK)
}

// WriteChunk implements guard.StreamFramer.
func (f *ndjsonFramer) WriteChunk(raw []byte) error {
	f.begin()
	if _, err := f.w.Write(append(raw, '\n')); err != nil {
		return err
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return nil
}

// WriteBlocked implements guard.StreamFramer.
func (f *ndjsonFramer) WriteBlocked(message, code string) error {
	return f.writeTerminal(message, "content_filter", code, types.ErrorTypePermissionDenied)
}

// WriteFailure implements guard.StreamFramer.
func (f *ndjsonFramer) WriteFailure(message string) error {
	return f.writeTerminal(message, "error", guard.CodeUpstreamError, types.ErrorTypeBadGateway)
}

// WriteDone implements guard.StreamFramer.
func (f *ndjsonFramer) WriteDone() error {
	f.begin()
	return nil
}

func (f *ndjsonFramer) writeTerminal(message, doneReason, code, errType string) error {
	frame := map[string]any{
		"model":       f.model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"done":        true,
		"done_reason": doneReason,
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}
	if f.chat {
		frame["message"] = map[string]any{"role": "assistant", "content": message}
	} else {
		frame["response"] = message
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return f.WriteChunk(data)
}
