// Package guard composes admission, verdict caching, content scanning, and
// backend forwarding into the guarded request pipeline. It owns the request
// lifecycle from ticket acquisition to the terminal state; HTTP concerns
// (framing, status codes) stay in the handlers.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sentinel-hq/aegis/pkg/admission"
	"sentinel-hq/aegis/pkg/audit"
	"sentinel-hq/aegis/pkg/cache"
	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/telemetry/metrics"
	"sentinel-hq/aegis/pkg/upstream"
)

// Guard runs guarded exchanges against the backend.
type Guard struct {
	admission *admission.Controller
	cache     cache.Store
	pipeline  *scan.Pipeline

	cacheTTL time.Duration
	window   int

	metrics *metrics.Metrics
	audit   *audit.Recorder
}

// New creates a guard over the given components. window is the number of
// accumulated streamed characters that triggers a re-scan.
func New(adm *admission.Controller, store cache.Store, pipeline *scan.Pipeline, cacheTTL time.Duration, window int) *Guard {
	if window < 1 {
		window = 1
	}
	return &Guard{
		admission: adm,
		cache:     store,
		pipeline:  pipeline,
		cacheTTL:  cacheTTL,
		window:    window,
	}
}

// SetMetrics attaches Prometheus collectors.
func (g *Guard) SetMetrics(m *metrics.Metrics) { g.metrics = m }

// SetAudit attaches the block-event recorder. A nil recorder is valid.
func (g *Guard) SetAudit(r *audit.Recorder) { g.audit = r }

// Request is one guarded exchange, already parsed by a dialect handler.
// The dialect closures keep the guard free of wire-format knowledge.
type Request struct {
	// RequestID correlates logs and audit events.
	RequestID string

	// Dialect names the wire dialect for logs and metrics.
	Dialect string

	// Model is the backend model the request targets.
	Model string

	// Text is the client text the input scan runs over.
	Text string

	// Forward sends the request and buffers the full response.
	Forward func(ctx context.Context) (*upstream.Response, error)

	// OpenStream sends the request and returns the live chunk stream.
	OpenStream func(ctx context.Context) (*upstream.Stream, error)

	// ResponseText extracts the assistant text from a buffered response.
	ResponseText func(body []byte) string

	// ReplaceText rewrites a buffered response's assistant text, used when
	// an analyzer redacted the output. Nil disables rewriting.
	ReplaceText func(body []byte, text string) []byte
}

// Result is a completed non-streaming exchange.
type Result struct {
	// Response is the backend response, with redactions applied.
	Response *upstream.Response

	// OutputVerdict is the verdict the response passed.
	OutputVerdict *scan.Verdict
}

// Do runs one guarded non-streaming exchange. Errors are from the guard
// taxonomy: *CapacityError, *BlockError, *UpstreamError, *TimeoutError.
func (g *Guard) Do(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	ticket, err := g.acquire(ctx, req)
	if err != nil {
		g.observe(req.Dialect, outcomeOf(err), start)
		return nil, err
	}
	defer g.admission.Release(ticket)

	logState(ctx, req, StateInputScanning)
	if verdict := g.scanInput(ctx, req); !verdict.Allowed {
		be := blockErrorFromVerdict(verdict, scan.DirectionInput, req.Text)
		g.recordBlock(req, be)
		g.observe(req.Dialect, "blocked", start)
		return nil, be
	}

	logState(ctx, req, StateForwarding)
	resp, err := req.Forward(ctx)
	if err != nil {
		err = g.upstreamFailure(ctx, err, "forwarding")
		g.observe(req.Dialect, outcomeOf(err), start)
		return nil, err
	}

	logState(ctx, req, StateOutputScanning)
	text := req.ResponseText(resp.Body)
	verdict := g.scanOutput(ctx, text, req.Text)
	if !verdict.Allowed {
		be := blockErrorFromVerdict(verdict, scan.DirectionOutput, req.Text)
		g.recordBlock(req, be)
		g.observe(req.Dialect, "blocked", start)
		return nil, be
	}

	if verdict.SanitizedText != text && req.ReplaceText != nil {
		resp.Body = req.ReplaceText(resp.Body, verdict.SanitizedText)
	}

	logState(ctx, req, StateCompleted)
	g.observe(req.Dialect, "completed", start)
	return &Result{Response: resp, OutputVerdict: verdict}, nil
}

// acquire obtains the admission ticket, mapping controller errors into the
// guard taxonomy and recording rejections.
func (g *Guard) acquire(ctx context.Context, req *Request) (*admission.Ticket, error) {
	ticket, err := g.admission.Acquire(ctx, req.Model)
	if err == nil {
		logState(ctx, req, StateAdmitted)
		return ticket, nil
	}

	if errors.Is(err, admission.ErrQueueFull) {
		state, _ := g.admission.Stats(req.Model)
		ce := &CapacityError{
			Model:         req.Model,
			ParallelLimit: state.ParallelLimit,
			QueueLimit:    state.QueueLimit,
		}
		g.audit.Record(audit.Event{
			RequestID: req.RequestID,
			Kind:      audit.KindRejection,
			Dialect:   req.Dialect,
			Model:     req.Model,
			Message:   ce.Error(),
		})
		return nil, ce
	}
	return nil, &TimeoutError{Stage: "admission", Cause: err}
}

// scanInput runs the input scan through the verdict cache.
func (g *Guard) scanInput(ctx context.Context, req *Request) *scan.Verdict {
	key := cache.Key(req.Text, string(scan.DirectionInput), g.pipeline.ConfigVersion())
	if v, ok, _ := g.cache.Get(ctx, key); ok {
		if g.metrics != nil {
			g.metrics.CacheHitsTotal.Inc()
		}
		return v
	}
	if g.metrics != nil {
		g.metrics.CacheMissesTotal.Inc()
	}

	v := g.pipeline.Scan(ctx, req.Text, scan.DirectionInput, "")
	g.cache.Set(ctx, key, v, g.cacheTTL)
	return v
}

// scanOutput runs the output scan through the verdict cache, with the
// request text as prompt context.
func (g *Guard) scanOutput(ctx context.Context, text, promptContext string) *scan.Verdict {
	key := cache.Key(text, string(scan.DirectionOutput), g.pipeline.ConfigVersion())
	if v, ok, _ := g.cache.Get(ctx, key); ok {
		if g.metrics != nil {
			g.metrics.CacheHitsTotal.Inc()
		}
		return v
	}
	if g.metrics != nil {
		g.metrics.CacheMissesTotal.Inc()
	}

	v := g.pipeline.Scan(ctx, text, scan.DirectionOutput, promptContext)
	g.cache.Set(ctx, key, v, g.cacheTTL)
	return v
}

// upstreamFailure classifies a forwarding error: deadline expiry and client
// disconnect share the cancellation path, everything else is the backend's
// fault.
func (g *Guard) upstreamFailure(ctx context.Context, err error, stage string) error {
	var te *upstream.TimeoutError
	if ctx.Err() != nil || errors.As(err, &te) {
		return &TimeoutError{Stage: stage, Cause: err}
	}
	return &UpstreamError{Cause: err}
}

// recordBlock audits one content block.
func (g *Guard) recordBlock(req *Request, be *BlockError) {
	g.audit.Record(audit.Event{
		RequestID: req.RequestID,
		Kind:      audit.KindBlock,
		Dialect:   req.Dialect,
		Model:     req.Model,
		Direction: string(be.Direction),
		Analyzer:  be.Analyzer,
		RiskScore: be.RiskScore,
		Message:   be.Error(),
	})
}

// observe records the request's terminal outcome.
func (g *Guard) observe(dialect, outcome string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RequestsTotal.WithLabelValues(dialect, outcome).Inc()
	g.metrics.RequestDuration.WithLabelValues(dialect).Observe(time.Since(start).Seconds())
}

// outcomeOf maps a taxonomy error to its metrics outcome label.
func outcomeOf(err error) string {
	switch Code(err) {
	case CodeCapacityExceeded:
		return "rejected"
	case CodeContentBlocked, CodeAnalyzerError:
		return "blocked"
	case CodeTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

func logState(ctx context.Context, req *Request, state State) {
	slog.DebugContext(ctx, "guard state",
		"request_id", req.RequestID,
		"dialect", req.Dialect,
		"model", req.Model,
		"state", state.String(),
	)
}
