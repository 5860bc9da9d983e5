// Package openai adapts the OpenAI-compatible dialect of the backend:
// chat completions at /v1/chat/completions, streamed as SSE data frames
// terminated by the "[DONE]" sentinel.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"sentinel-hq/aegis/pkg/upstream"
)

const (
	chatPath   = "/v1/chat/completions"
	modelsPath = "/v1/models"
)

var ssePrefix = []byte("data: ")

// Client speaks the OpenAI-compatible dialect over the shared base client.
type Client struct {
	base *upstream.Client
}

// New wraps the base client with the OpenAI dialect.
func New(base *upstream.Client) *Client {
	return &Client{base: base}
}

// Name identifies the dialect in logs and metrics.
func (c *Client) Name() string { return "openai" }

// Forward sends a non-streaming chat completion and buffers the response.
func (c *Client) Forward(ctx context.Context, body []byte) (*upstream.Response, error) {
	return c.base.PostJSON(ctx, chatPath, body)
}

// ForwardStreaming sends a streaming chat completion and returns the live
// SSE stream.
func (c *Client) ForwardStreaming(ctx context.Context, body []byte) (*upstream.Stream, error) {
	return c.base.OpenStream(ctx, chatPath, body, decodeFrame, ChunkText)
}

// Models fetches the backend's model list for passthrough.
func (c *Client) Models(ctx context.Context) (*upstream.Response, error) {
	return c.base.Get(ctx, modelsPath)
}

// decodeFrame parses one SSE line. Only "data: " lines carry payloads;
// everything else (blank keep-alive lines, comments, event names) is
// skipped.
func decodeFrame(line []byte) (payload []byte, done bool, skip bool) {
	if !bytes.HasPrefix(line, ssePrefix) {
		return nil, false, true
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(line, ssePrefix))
	if string(data) == "[DONE]" {
		return nil, true, false
	}
	return data, false, false
}

// ChunkText extracts the delta text from one streamed chunk.
func ChunkText(raw []byte) string {
	return gjson.GetBytes(raw, "choices.0.delta.content").String()
}

// ResponseText extracts the assistant text from a buffered (non-streaming)
// chat completion. Multiple choices are concatenated; in practice the
// backend returns one.
func ResponseText(body []byte) string {
	choices := gjson.GetBytes(body, "choices.#.message.content")
	if !choices.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, part := range choices.Array() {
		b.WriteString(part.String())
	}
	return b.String()
}

// ReplaceResponseText rewrites the assistant text of a buffered chat
// completion, used when the output scan redacted it. The first choice
// carries the full replacement; any further choices are emptied since the
// redacted text is no longer per-choice. A body that does not decode is
// returned unchanged.
func ReplaceResponseText(body []byte, text string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}
	choices, ok := doc["choices"].([]any)
	if !ok {
		return body
	}
	for i, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		message, ok := choice["message"].(map[string]any)
		if !ok {
			continue
		}
		if i == 0 {
			message["content"] = text
		} else {
			message["content"] = ""
		}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return out
}

// RequestModel extracts the target model from a chat completion request.
func RequestModel(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

// RequestStream reports whether the request asked for a streamed response.
func RequestStream(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

// RequestText flattens the request's message contents into the text the
// input scan runs over. Non-string content parts (images, tool payloads)
// contribute their text fields only.
func RequestText(body []byte) string {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, msg := range messages.Array() {
		content := msg.Get("content")
		switch {
		case content.Type == gjson.String:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(content.String())
		case content.IsArray():
			for _, part := range content.Array() {
				if text := part.Get("text"); text.Exists() {
					if b.Len() > 0 {
						b.WriteByte('\n')
					}
					b.WriteString(text.String())
				}
			}
		}
	}
	return b.String()
}
