package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/upstream"
)

// StreamFramer writes guarded stream output in a dialect's wire framing.
// Handlers implement it over the HTTP response; the relay stays free of
// wire-format knowledge.
type StreamFramer interface {
	// WriteChunk relays one backend frame unchanged.
	WriteChunk(raw []byte) error

	// WriteBlocked writes the terminal block marker (an error chunk with a
	// completion flag) followed by the dialect's stream terminator.
	WriteBlocked(message, code string) error

	// WriteFailure writes a terminal marker for a mid-stream backend
	// failure, followed by the terminator.
	WriteFailure(message string) error

	// WriteDone writes the dialect's normal stream terminator.
	WriteDone() error
}

// DoStream runs one guarded streaming exchange.
//
// Errors before any byte is streamed (rejection, input block, connect
// failure) are returned without touching the framer, so the handler can
// still send a plain error response. Once relaying has begun all outcomes
// are expressed through the framer, and the returned state reports how the
// stream ended.
//
// Frames are held back until the accumulated text they complete passes a
// scan: the relay scans whenever at least window unscanned characters have
// arrived (and once more at natural end), then flushes the held frames. On
// a failed scan the held frames are dropped, the backend stream is
// cancelled immediately, and the client gets one terminal block marker.
func (g *Guard) DoStream(ctx context.Context, req *Request, framer StreamFramer) (State, error) {
	start := time.Now()

	ticket, err := g.acquire(ctx, req)
	if err != nil {
		g.observe(req.Dialect, outcomeOf(err), start)
		return StateFailed, err
	}
	defer g.admission.Release(ticket)

	logState(ctx, req, StateInputScanning)
	if verdict := g.scanInput(ctx, req); !verdict.Allowed {
		be := blockErrorFromVerdict(verdict, scan.DirectionInput, req.Text)
		g.recordBlock(req, be)
		g.observe(req.Dialect, "blocked", start)
		return StateBlocked, be
	}

	logState(ctx, req, StateForwarding)
	stream, err := req.OpenStream(ctx)
	if err != nil {
		err = g.upstreamFailure(ctx, err, "forwarding")
		g.observe(req.Dialect, outcomeOf(err), start)
		return StateFailed, err
	}
	defer stream.Close()

	logState(ctx, req, StateStreamScanning)
	state := g.relay(ctx, req, stream, framer)
	g.observe(req.Dialect, state.String(), start)
	logState(ctx, req, state)
	return state, nil
}

// relay drains the backend stream through window scans to the framer.
func (g *Guard) relay(ctx context.Context, req *Request, stream *upstream.Stream, framer StreamFramer) State {
	var accumulated strings.Builder
	var pending [][]byte
	unscanned := 0 // characters arrived since the last scan, in runes
	sawDone := false

	flush := func() bool {
		for _, raw := range pending {
			if err := framer.WriteChunk(raw); err != nil {
				return false
			}
		}
		pending = pending[:0]
		return true
	}

	// scanWindow checks everything accumulated so far. Scanning the full
	// text rather than the new tail lets patterns spanning chunk boundaries
	// match. Partial texts are not cached; only the final full-text verdict
	// is worth keeping.
	scanWindow := func(final bool) *scan.Verdict {
		unscanned = 0
		if final {
			return g.scanOutput(ctx, accumulated.String(), req.Text)
		}
		return g.pipeline.Scan(ctx, accumulated.String(), scan.DirectionOutput, req.Text)
	}

	block := func(v *scan.Verdict) State {
		be := blockErrorFromVerdict(v, scan.DirectionOutput, req.Text)
		g.recordBlock(req, be)
		if g.metrics != nil {
			g.metrics.StreamAborts.WithLabelValues(req.Dialect).Inc()
		}

		// Cancel the backend before talking to the client: no further
		// tokens may be generated or forwarded once the block is known.
		stream.Close()
		pending = nil
		framer.WriteBlocked(be.Message, be.Code())
		return StateBlocked
	}

	for chunk := range stream.Chunks {
		if len(chunk.Raw) > 0 {
			pending = append(pending, chunk.Raw)
			accumulated.WriteString(chunk.Text)
			unscanned += utf8.RuneCountInString(chunk.Text)
		}

		if chunk.Done {
			sawDone = true
			break
		}

		if unscanned >= g.window {
			if v := scanWindow(false); !v.Allowed {
				return block(v)
			}
			if !flush() {
				return StateFailed
			}
		}
	}

	if ctx.Err() != nil {
		// Client gone or deadline hit; nothing left to write to.
		return StateFailed
	}

	if err := stream.Err(); err != nil {
		slog.WarnContext(ctx, "stream interrupted",
			"request_id", req.RequestID,
			"dialect", req.Dialect,
			"error", err,
		)
		// Deliver what already passed scanning, then mark the truncation.
		if unscanned > 0 {
			if v := scanWindow(false); !v.Allowed {
				return block(v)
			}
		}
		flush()
		framer.WriteFailure("backend stream interrupted")
		return StateFailed
	}

	// Natural end: the unscanned tail still has to pass before the held
	// frames reach the client.
	if unscanned > 0 || sawDone {
		if v := scanWindow(true); !v.Allowed {
			return block(v)
		}
	}
	if !flush() {
		return StateFailed
	}
	if err := framer.WriteDone(); err != nil {
		return StateFailed
	}
	return StateCompleted
}
