// Package ollama adapts the backend's native dialect: /api/chat and
// /api/generate, streamed as newline-delimited JSON where the final frame
// carries "done":true.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"sentinel-hq/aegis/pkg/upstream"
)

const (
	// ChatPath is the conversational endpoint.
	ChatPath = "/api/chat"
	// GeneratePath is the single-prompt completion endpoint.
	GeneratePath = "/api/generate"

	tagsPath    = "/api/tags"
	versionPath = "/api/version"
)

// Client speaks the native dialect over the shared base client.
type Client struct {
	base *upstream.Client
}

// New wraps the base client with the native dialect.
func New(base *upstream.Client) *Client {
	return &Client{base: base}
}

// Name identifies the dialect in logs and metrics.
func (c *Client) Name() string { return "ollama" }

// Forward sends a non-streaming request to path (ChatPath or GeneratePath)
// and buffers the response.
func (c *Client) Forward(ctx context.Context, path string, body []byte) (*upstream.Response, error) {
	return c.base.PostJSON(ctx, path, body)
}

// ForwardStreaming sends a streaming request to path and returns the live
// NDJSON stream.
func (c *Client) ForwardStreaming(ctx context.Context, path string, body []byte) (*upstream.Stream, error) {
	return c.base.OpenStream(ctx, path, body, decodeFrame, ChunkText)
}

// Tags fetches the installed-model list for passthrough.
func (c *Client) Tags(ctx context.Context) (*upstream.Response, error) {
	return c.base.Get(ctx, tagsPath)
}

// Version fetches the backend version for passthrough.
func (c *Client) Version(ctx context.Context) (*upstream.Response, error) {
	return c.base.Get(ctx, versionPath)
}

// decodeFrame parses one NDJSON line. Every non-blank line is a frame;
// the final frame announces itself with "done":true and still carries
// payload (timing stats, final context).
func decodeFrame(line []byte) (payload []byte, done bool, skip bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false, true
	}
	return trimmed, gjson.GetBytes(trimmed, "done").Bool(), false
}

// ChunkText extracts the delta text from one streamed frame. Chat frames
// carry it in message.content, generate frames in response.
func ChunkText(raw []byte) string {
	if msg := gjson.GetBytes(raw, "message.content"); msg.Exists() {
		return msg.String()
	}
	return gjson.GetBytes(raw, "response").String()
}

// ResponseText extracts the assistant text from a buffered response.
func ResponseText(body []byte) string {
	return ChunkText(body)
}

// ReplaceResponseText rewrites the assistant text of a buffered response,
// used when the output scan redacted it. A body that does not decode is
// returned unchanged.
func ReplaceResponseText(body []byte, text string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}
	if message, ok := doc["message"].(map[string]any); ok {
		message["content"] = text
	} else if _, ok := doc["response"]; ok {
		doc["response"] = text
	} else {
		return body
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return out
}

// RequestModel extracts the target model from a request body.
func RequestModel(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

// RequestStream reports whether the request asked for a streamed response.
// Unlike the OpenAI dialect, streaming is the default here: only an
// explicit "stream":false disables it.
func RequestStream(body []byte) bool {
	stream := gjson.GetBytes(body, "stream")
	if !stream.Exists() {
		return true
	}
	return stream.Bool()
}

// RequestText flattens the request into the text the input scan runs
// over: message contents for chat requests, the prompt (plus system and
// template overrides) for generate requests.
func RequestText(body []byte) string {
	var b strings.Builder

	if messages := gjson.GetBytes(body, "messages"); messages.IsArray() {
		for _, msg := range messages.Array() {
			if content := msg.Get("content"); content.Type == gjson.String {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(content.String())
			}
		}
		return b.String()
	}

	for _, field := range []string{"system", "prompt"} {
		if v := gjson.GetBytes(body, field); v.Type == gjson.String && v.String() != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(v.String())
		}
	}
	return b.String()
}
