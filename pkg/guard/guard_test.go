package guard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-hq/aegis/pkg/admission"
	"sentinel-hq/aegis/pkg/cache"
	"sentinel-hq/aegis/pkg/scan"
	"sentinel-hq/aegis/pkg/upstream"
)

// keywordAnalyzer blocks text containing its trigger and counts invocations.
type keywordAnalyzer struct {
	name    string
	trigger string
	calls   atomic.Int32
}

func (a *keywordAnalyzer) Name() string { return a.name }

func (a *keywordAnalyzer) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	a.calls.Add(1)
	if a.trigger != "" && strings.Contains(text, a.trigger) {
		return text, false, 0.9, nil
	}
	return text, true, 0, nil
}

// redactAnalyzer rewrites its target but always passes.
type redactAnalyzer struct {
	target string
}

func (a *redactAnalyzer) Name() string { return "redactor" }

func (a *redactAnalyzer) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	if strings.Contains(text, a.target) {
		return strings.ReplaceAll(text, a.target, "[REDACTED]"), true, 0.2, nil
	}
	return text, true, 0, nil
}

func newTestGuard(parallel, queue int64, window int) *Guard {
	return New(
		admission.NewController(parallel, queue),
		cache.NewLocalStore(100),
		scan.NewPipeline(true),
		time.Minute,
		window,
	)
}

func forwardText(text string) func(context.Context) (*upstream.Response, error) {
	return func(ctx context.Context) (*upstream.Response, error) {
		return &upstream.Response{
			StatusCode:  200,
			ContentType: "application/json",
			Body:        []byte(text),
		}, nil
	}
}

// rawResponseText treats the whole body as the assistant text, keeping
// these tests free of wire-format concerns.
func rawResponseText(body []byte) string { return string(body) }

func TestDoHappyPath(t *testing.T) {
	g := newTestGuard(2, 2, 500)
	g.pipeline.Register(&keywordAnalyzer{name: "kw", trigger: "FORBIDDEN"}, true, true)

	res, err := g.Do(context.Background(), &Request{
		RequestID:    "r1",
		Dialect:      "openai",
		Model:        "llama3",
		Text:         "tell me about turtles",
		Forward:      forwardText("turtles are reptiles"),
		ResponseText: rawResponseText,
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(res.Response.Body) != "turtles are reptiles" {
		t.Errorf("body = %q", res.Response.Body)
	}
	if !res.OutputVerdict.Allowed {
		t.Error("output verdict should be allowed")
	}

	state, _ := g.admission.Stats("llama3")
	if state.ActiveCount != 0 {
		t.Errorf("ticket not released: active = %d", state.ActiveCount)
	}
}

func TestDoInputBlocked(t *testing.T) {
	g := newTestGuard(2, 2, 500)
	g.pipeline.Register(&keywordAnalyzer{name: "kw", trigger: "FORBIDDEN"}, true, true)

	forwarded := false
	_, err := g.Do(context.Background(), &Request{
		RequestID: "r1",
		Model:     "llama3",
		Text:      "FORBIDDEN request",
		Forward: func(ctx context.Context) (*upstream.Response, error) {
			forwarded = true
			return nil, nil
		},
		ResponseText: rawResponseText,
	})

	var be *BlockError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *BlockError", err)
	}
	if be.Direction != scan.DirectionInput {
		t.Errorf("direction = %q", be.Direction)
	}
	if be.Analyzer != "kw" {
		t.Errorf("analyzer = %q", be.Analyzer)
	}
	if forwarded {
		t.Error("blocked input must never reach the backend")
	}
	if Code(err) != CodeContentBlocked {
		t.Errorf("code = %q", Code(err))
	}

	state, _ := g.admission.Stats("llama3")
	if state.ActiveCount != 0 {
		t.Errorf("ticket not released after block: active = %d", state.ActiveCount)
	}
}

func TestDoOutputBlocked(t *testing.T) {
	g := newTestGuard(2, 2, 500)
	g.pipeline.Register(&keywordAnalyzer{name: "kw", trigger: "FORBIDDEN"}, true, true)

	_, err := g.Do(context.Background(), &Request{
		RequestID:    "r1",
		Model:        "llama3",
		Text:         "a clean question",
		Forward:      forwardText("a FORBIDDEN answer"),
		ResponseText: rawResponseText,
	})

	var be *BlockError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *BlockError", err)
	}
	if be.Direction != scan.DirectionOutput {
		t.Errorf("direction = %q", be.Direction)
	}
	if be.Message != "The response was blocked by content policy." {
		t.Errorf("message = %q", be.Message)
	}
}

func TestDoRepeatedPromptServedFromCache(t *testing.T) {
	// An identical prompt must not re-run the input analyzers.
	g := newTestGuard(2, 2, 500)
	kw := &keywordAnalyzer{name: "kw"}
	g.pipeline.Register(kw, true, false)

	req := func() *Request {
		return &Request{
			RequestID:    "r",
			Model:        "llama3",
			Text:         "what   is  the capital of France?",
			Forward:      forwardText("Paris"),
			ResponseText: rawResponseText,
		}
	}

	if _, err := g.Do(context.Background(), req()); err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	if got := kw.calls.Load(); got != 1 {
		t.Fatalf("calls after first request = %d, want 1", got)
	}

	if _, err := g.Do(context.Background(), req()); err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	if got := kw.calls.Load(); got != 1 {
		t.Errorf("calls after repeat = %d, want 1 (verdict must come from cache)", got)
	}

	// Whitespace variants of the prompt hit the same entry.
	r := req()
	r.Text = "what is the capital of France?"
	if _, err := g.Do(context.Background(), r); err != nil {
		t.Fatalf("third Do failed: %v", err)
	}
	if got := kw.calls.Load(); got != 1 {
		t.Errorf("calls after whitespace variant = %d, want 1", got)
	}
}

func TestDoCachedBlockStillBlocks(t *testing.T) {
	g := newTestGuard(2, 2, 500)
	kw := &keywordAnalyzer{name: "kw", trigger: "FORBIDDEN"}
	g.pipeline.Register(kw, true, false)

	req := func() *Request {
		return &Request{
			Model:        "llama3",
			Text:         "FORBIDDEN request",
			Forward:      forwardText("unused"),
			ResponseText: rawResponseText,
		}
	}

	if _, err := g.Do(context.Background(), req()); err == nil {
		t.Fatal("first request should be blocked")
	}
	_, err := g.Do(context.Background(), req())
	var be *BlockError
	if !errors.As(err, &be) {
		t.Fatalf("repeat err = %T, want *BlockError", err)
	}
	if got := kw.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (blocked verdicts cache too)", got)
	}
}

func TestDoRedactedOutputRewritten(t *testing.T) {
	g := newTestGuard(2, 2, 500)
	g.pipeline.Register(&redactAnalyzer{target: "alice@example.com"}, false, true)

	res, err := g.Do(context.Background(), &Request{
		Model:        "llama3",
		Text:         "whose address?",
		Forward:      forwardText("mail alice@example.com today"),
		ResponseText: rawResponseText,
		ReplaceText: func(body []byte, text string) []byte {
			return []byte(text)
		},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := string(res.Response.Body); got != "mail [REDACTED] today" {
		t.Errorf("body = %q", got)
	}
}

func TestDoCapacityExceeded(t *testing.T) {
	g := newTestGuard(1, 0, 500)

	ticket, err := g.admission.Acquire(context.Background(), "llama3")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer g.admission.Release(ticket)

	_, err = g.Do(context.Background(), &Request{
		Model:        "llama3",
		Text:         "hi",
		Forward:      forwardText("unused"),
		ResponseText: rawResponseText,
	})

	var ce *CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T, want *CapacityError", err)
	}
	if ce.Model != "llama3" || ce.ParallelLimit != 1 || ce.QueueLimit != 0 {
		t.Errorf("unexpected capacity error: %+v", ce)
	}
	if Code(err) != CodeCapacityExceeded {
		t.Errorf("code = %q", Code(err))
	}
}

func TestDoUpstreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		forward  func(context.Context) (*upstream.Response, error)
		wantCode string
	}{
		{
			"backend error",
			func(ctx context.Context) (*upstream.Response, error) {
				return nil, &upstream.Error{Endpoint: "/v1/chat/completions", StatusCode: 500}
			},
			CodeUpstreamError,
		},
		{
			"backend timeout",
			func(ctx context.Context) (*upstream.Response, error) {
				return nil, &upstream.TimeoutError{Endpoint: "/v1/chat/completions", Cause: context.DeadlineExceeded}
			},
			CodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGuard(2, 2, 500)
			_, err := g.Do(context.Background(), &Request{
				Model:        "llama3",
				Text:         "hi",
				Forward:      tt.forward,
				ResponseText: rawResponseText,
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Code(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"capacity", &CapacityError{Model: "m"}, CodeCapacityExceeded},
		{"block", &BlockError{Analyzer: "kw"}, CodeContentBlocked},
		{"analyzer failure block", &BlockError{Analyzer: "kw", AnalyzerFailure: true}, CodeAnalyzerError},
		{"timeout", &TimeoutError{Stage: "forwarding"}, CodeTimeout},
		{"upstream", &UpstreamError{Cause: errors.New("boom")}, CodeUpstreamError},
		{"unknown", errors.New("anything"), CodeUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBlockErrorFromVerdict(t *testing.T) {
	v := &scan.Verdict{
		Allowed: false,
		Analyzers: map[string]scan.AnalyzerResult{
			"healthy": {Passed: true, RiskScore: 0.1},
			"broken":  {Passed: false, RiskScore: 0.5, Error: "model load failed"},
		},
	}

	be := blockErrorFromVerdict(v, scan.DirectionOutput, "some text")
	if be.Analyzer != "broken" {
		t.Errorf("analyzer = %q", be.Analyzer)
	}
	if !be.AnalyzerFailure {
		t.Error("fail-closed folding must be marked as an analyzer failure")
	}
	if be.Code() != CodeAnalyzerError {
		t.Errorf("code = %q", be.Code())
	}
}
