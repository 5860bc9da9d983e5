package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"sentinel-hq/aegis/pkg/admission"
	"sentinel-hq/aegis/pkg/audit"
	"sentinel-hq/aegis/pkg/cache"
	"sentinel-hq/aegis/pkg/config"
	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/upstream"
	"sentinel-hq/aegis/pkg/upstream/ollama"
	"sentinel-hq/aegis/pkg/upstream/openai"
)

// blockwordAnalyzer blocks any text containing "FORBIDDEN".
type blockwordAnalyzer struct{}

func (blockwordAnalyzer) Name() string { return "blockword" }

func (blockwordAnalyzer) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	if strings.Contains(text, "FORBIDDEN") {
		return text, false, 0.9, nil
	}
	return text, true, 0, nil
}

// fakeBackend serves both dialects well enough for handler tests.
func fakeBackend() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "stream").Bool() {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, delta := range []string{"streamed ", "FORBIDDEN ", "text"} {
				frame, _ := json.Marshal(map[string]any{
					"choices": []map[string]any{{"delta": map[string]any{"content": delta}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", frame)
				flusher.Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`)
	})

	nativeChat := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		deltas := []string{"streamed ", "native ", "text"}
		// Prompts asking for trouble get a policy-violating answer.
		if strings.Contains(string(body), "naughty") {
			deltas = []string{"streamed ", "FORBIDDEN ", "text"}
		}
		if ollama.RequestStream(body) {
			w.Header().Set("Content-Type", "application/x-ndjson")
			flusher := w.(http.Flusher)
			for _, delta := range deltas {
				fmt.Fprintf(w, `{"model":"llama3","response":%q,"done":false}`+"\n", delta)
				flusher.Flush()
			}
			fmt.Fprint(w, `{"model":"llama3","done":true,"total_duration":5}`+"\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3","response":"Hello native!","done":true}`)
	}
	mux.HandleFunc("POST /api/chat", nativeChat)
	mux.HandleFunc("POST /api/generate", nativeChat)

	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"llama3"}]}`)
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"models":[{"name":"llama3"}]}`)
	})
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"version":"0.5.0"}`)
	})

	return httptest.NewServer(mux)
}

// newTestHandler wires a handler set over the given backend URL.
func newTestHandler(t *testing.T, backendURL string) *Handler {
	t.Helper()

	base := upstream.NewClient(config.UpstreamConfig{
		BaseURL:             backendURL,
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     time.Minute,
	})
	t.Cleanup(func() { base.Close() })

	pipeline := scan.NewPipeline(true)
	pipeline.Register(blockwordAnalyzer{}, true, true)

	ctrl := admission.NewController(4, 4)
	store := cache.NewLocalStore(100)
	t.Cleanup(func() { store.Close() })

	g := guard.New(ctrl, store, pipeline, time.Minute, 500)
	rec := audit.NewRecorder(audit.NewMemoryStorage(100), 16, 0, "")
	t.Cleanup(func() { rec.Stop() })
	g.SetAudit(rec)

	return New(g, openai.New(base), ollama.New(base), ctrl, store, pipeline, rec)
}

func postJSON(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions",
		`{"model":"llama3","messages":[{"role":"user","content":"say hello"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := gjson.Get(rec.Body.String(), "choices.0.message.content").String(); got != "Hello!" {
		t.Errorf("content = %q", got)
	}
}

func TestChatCompletionsMissingModel(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions", `{"messages":[]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error.code").String(); got != "missing_field" {
		t.Errorf("code = %q", got)
	}
}

func TestChatCompletionsInputBlocked(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions",
		`{"model":"llama3","messages":[{"role":"user","content":"FORBIDDEN request"}]}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "error.code").String(); got != guard.CodeContentBlocked {
		t.Errorf("code = %q", got)
	}
	if got := gjson.Get(body, "error.block.direction").String(); got != "input" {
		t.Errorf("direction = %q", got)
	}
	if got := gjson.Get(body, "error.block.analyzer").String(); got != "blockword" {
		t.Errorf("analyzer = %q", got)
	}
}

func TestChatCompletionsCapacity(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	h.admission.UpdateLimits("llama3", 1, 0)
	ticket, err := h.admission.Acquire(context.Background(), "llama3")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer h.admission.Release(ticket)

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions",
		`{"model":"llama3","messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error.code").String(); got != guard.CodeCapacityExceeded {
		t.Errorf("code = %q", got)
	}
}

func TestChatCompletionsStreamingBlocked(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions",
		`{"model":"llama3","stream":true,"messages":[{"role":"user","content":"say something"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	if strings.Contains(body, "FORBIDDEN") {
		t.Error("violating text reached the client")
	}
	if !strings.Contains(body, `"finish_reason":"content_filter"`) {
		t.Error("no content_filter terminal chunk")
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Error("stream not terminated with [DONE]")
	}
}

func TestChatCompletionsBackendDown(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1")

	rec := postJSON(h.ChatCompletions, "/v1/chat/completions",
		`{"model":"llama3","messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error.code").String(); got != guard.CodeUpstreamError {
		t.Errorf("code = %q", got)
	}
}

func TestNativeGenerateNonStreaming(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.NativeGenerate, "/api/generate",
		`{"model":"llama3","prompt":"say hello","stream":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := gjson.Get(rec.Body.String(), "response").String(); got != "Hello native!" {
		t.Errorf("response = %q", got)
	}
}

func TestNativeGenerateStreamingDefault(t *testing.T) {
	// The native dialect streams unless stream:false is explicit.
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.NativeGenerate, "/api/generate",
		`{"model":"llama3","prompt":"say hello"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d frames, want 4: %q", len(lines), lines)
	}
	var text strings.Builder
	for _, line := range lines {
		text.WriteString(gjson.Get(line, "response").String())
	}
	if text.String() != "streamed native text" {
		t.Errorf("delivered = %q", text.String())
	}
	if !gjson.Get(lines[3], "done").Bool() {
		t.Error("final frame not done")
	}
}

func TestNativeChatStreamingBlocked(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.NativeChat, "/api/chat",
		`{"model":"llama3","messages":[{"role":"user","content":"FORBIDDEN is in my prompt"}]}`)

	// Blocked before streaming begins: a plain error response.
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := gjson.Get(rec.Body.String(), "error.block.direction").String(); got != "input" {
		t.Errorf("direction = %q", got)
	}
}

func TestNativeStreamOutputBlocked(t *testing.T) {
	// The backend stream carries the violation; the client gets the clean
	// frames withheld and one terminal block frame instead.
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := postJSON(h.NativeChat, "/api/chat",
		`{"model":"llama3","messages":[{"role":"user","content":"say something naughty"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if strings.Contains(body, "FORBIDDEN") {
		t.Error("violating text reached the client")
	}
	lines := strings.Split(body, "\n")
	last := lines[len(lines)-1]
	if !gjson.Get(last, "done").Bool() {
		t.Errorf("terminal frame not done: %q", last)
	}
	if got := gjson.Get(last, "done_reason").String(); got != "content_filter" {
		t.Errorf("done_reason = %q", got)
	}
	if got := gjson.Get(last, "error.code").String(); got != guard.CodeContentBlocked {
		t.Errorf("error code = %q", got)
	}
}

func TestPassthroughModels(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := httptest.NewRecorder()
	h.Models(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "data.0.id").String(); got != "llama3" {
		t.Errorf("model = %q", got)
	}
}

func TestPassthroughBackendDown(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	h.Tags(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	backend := fakeBackend()
	defer backend.Close()
	h := newTestHandler(t, backend.URL)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}

func TestReadyBackendDown(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
