package upstream

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// maxFrameSize bounds a single streamed frame. Backend chunks are small;
// anything near this size is malformed.
const maxFrameSize = 1024 * 1024

// FrameFunc decodes one wire line into a frame payload. skip discards the
// line (SSE comments, keep-alives, blank lines); done marks the dialect's
// stream terminator. A done frame may still carry a payload (NDJSON final
// frames do; the SSE "[DONE]" sentinel does not).
type FrameFunc func(line []byte) (payload []byte, done bool, skip bool)

// TextFunc extracts the delta text from one frame payload.
type TextFunc func(payload []byte) string

// Stream is a live streaming response. Chunks delivers frames in arrival
// order and is closed when the stream ends for any reason; Err reports,
// after close, whether the end was natural or a mid-stream failure.
//
// Close cancels the underlying request immediately. It is safe to call
// from a different goroutine than the one draining Chunks, and safe to
// call more than once.
type Stream struct {
	Chunks <-chan StreamChunk

	cancel context.CancelFunc
	body   io.Closer

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// Err returns the mid-stream failure, if any. Valid once Chunks is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Close aborts the stream and releases the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.body.Close()
	})
	return nil
}

// OpenStream sends one streaming inference request and returns the live
// stream. A connect failure or error status surfaces here, once; after a
// successful connect all failures are reported through Stream.Err.
func (c *Client) OpenStream(ctx context.Context, path string, body []byte, frame FrameFunc, text TextFunc) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := c.Post(ctx, path, body)
	if err != nil {
		cancel()
		return nil, err
	}

	chunks := make(chan StreamChunk)
	s := &Stream{
		Chunks: chunks,
		cancel: cancel,
		body:   resp.Body,
	}

	go func() {
		defer close(chunks)
		defer s.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

		for scanner.Scan() {
			payload, done, skip := frame(scanner.Bytes())
			if skip {
				continue
			}
			// The scanner reuses its buffer; the chunk needs its own copy.
			var raw []byte
			var delta string
			if len(payload) > 0 {
				raw = make([]byte, len(payload))
				copy(raw, payload)
				delta = text(raw)
			}

			select {
			case chunks <- StreamChunk{Raw: raw, Text: delta, Done: done}:
			case <-ctx.Done():
				return
			}
			if done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			s.setErr(&StreamError{Endpoint: path, Cause: err})
		}
	}()

	return s, nil
}
