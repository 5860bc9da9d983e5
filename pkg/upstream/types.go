package upstream

// Response is a fully buffered backend response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// StreamChunk is one frame of a streaming backend response. Raw holds the
// frame's JSON payload exactly as the backend sent it, so the relay can
// re-frame it for the client without re-encoding; Text is the delta text
// the dialect extracted from it.
type StreamChunk struct {
	Raw  []byte
	Text string
	Done bool
}
