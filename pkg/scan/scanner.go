// Package scan runs ordered content-safety analyzer pipelines over request
// and response text.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sentinel-hq/aegis/pkg/config"
	"sentinel-hq/aegis/pkg/telemetry/metrics"
)

// Analyzer is a single content-safety check. Implementations receive the
// text produced by the previous analyzer in the pipeline and return the
// (possibly modified) text, whether it passed, and a risk score in [0, 1].
//
// For output-direction scans, promptContext carries the original request
// prompt as read-only context; it is empty for input scans. Analyzer
// internals are opaque to the pipeline: a returned error (or a panic, which
// the pipeline recovers) is recorded against that analyzer alone and never
// halts the remaining analyzers.
type Analyzer interface {
	// Name returns the analyzer's registration name.
	Name() string

	// Scan analyzes text and returns (sanitizedText, passed, riskScore).
	Scan(ctx context.Context, text string, promptContext string) (string, bool, float64, error)
}

// entry is one registered analyzer with its direction and enable state.
type entry struct {
	analyzer Analyzer
	input    bool
	output   bool
	enabled  bool
}

// Pipeline runs a fixed, ordered list of analyzers for a direction.
//
// Analyzers run as a pipeline, not a fan-out: analyzer i receives the text
// produced by analyzer i-1, so a redaction step sees already-filtered text
// and cheap checks can run before expensive ones. One analyzer's failure is
// isolated and folded into the verdict per the fail-closed policy.
//
// # Thread Safety
//
// Scan may be called from many request goroutines concurrently. Enable
// flags and the fail-closed policy may be flipped at runtime; a mutex
// guards the registration list and policy.
type Pipeline struct {
	mu         sync.RWMutex
	entries    []*entry
	failClosed bool

	metrics *metrics.Metrics
}

// NewPipeline creates an empty pipeline with the given fail-closed policy.
func NewPipeline(failClosed bool) *Pipeline {
	return &Pipeline{failClosed: failClosed}
}

// SetMetrics attaches Prometheus collectors. A nil metrics set disables
// instrumentation.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// Register appends an analyzer to the pipeline in call order. The input and
// output flags select which direction(s) the analyzer runs for. Analyzers
// start enabled.
func (p *Pipeline) Register(a Analyzer, input, output bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &entry{
		analyzer: a,
		input:    input,
		output:   output,
		enabled:  true,
	})
}

// SetEnabled enables or disables an analyzer by name without a restart.
// It returns false if no analyzer with that name is registered.
func (p *Pipeline) SetEnabled(name string, enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.analyzer.Name() == name {
			e.enabled = enabled
			return true
		}
	}
	return false
}

// SetFailClosed updates the fail-closed policy at runtime.
func (p *Pipeline) SetFailClosed(failClosed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failClosed = failClosed
}

// ApplyConfig re-applies analyzer enable flags and the fail-closed policy
// from a (re)loaded scan configuration. Analyzers absent from the config
// map keep their current state.
func (p *Pipeline) ApplyConfig(cfg *config.ScanConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failClosed = cfg.FailClosed
	for _, e := range p.entries {
		if ac, ok := cfg.Analyzers[e.analyzer.Name()]; ok {
			e.enabled = ac.Enabled
		}
	}
}

// ConfigVersion returns a short hash of the active analyzer set and policy.
// The cache mixes it into verdict keys so changing which analyzers run
// invalidates stale verdicts automatically.
func (p *Pipeline) ConfigVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	parts := make([]string, 0, len(p.entries)+1)
	for _, e := range p.entries {
		if !e.enabled {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%t:%t", e.analyzer.Name(), e.input, e.output))
	}
	sort.Strings(parts)
	parts = append(parts, fmt.Sprintf("failclosed:%t", p.failClosed))

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

// Scan runs the pipeline for the given direction and returns the combined
// verdict. It never returns an error: analyzer failures are folded into the
// verdict per the fail-closed policy.
func (p *Pipeline) Scan(ctx context.Context, text string, direction Direction, promptContext string) *Verdict {
	p.mu.RLock()
	failClosed := p.failClosed
	active := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		if !e.enabled {
			continue
		}
		if (direction == DirectionInput && e.input) || (direction == DirectionOutput && e.output) {
			active = append(active, e)
		}
	}
	m := p.metrics
	p.mu.RUnlock()

	verdict := &Verdict{
		Allowed:   true,
		Analyzers: make(map[string]AnalyzerResult, len(active)),
	}

	current := text
	for _, e := range active {
		name := e.analyzer.Name()
		start := time.Now()

		sanitized, passed, risk, err := p.runAnalyzer(ctx, e.analyzer, current, promptContext)

		if m != nil {
			m.ScanDuration.WithLabelValues(name, string(direction)).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			// Fold the failure per policy; the remaining analyzers still
			// run on the last good text.
			slog.WarnContext(ctx, "analyzer failed",
				"analyzer", name,
				"direction", direction,
				"fail_closed", failClosed,
				"error", err,
			)
			verdict.Analyzers[name] = AnalyzerResult{
				Passed:    !failClosed,
				RiskScore: 0,
				Error:     err.Error(),
			}
			if failClosed {
				verdict.Allowed = false
				if m != nil {
					m.ScanBlocks.WithLabelValues(name, string(direction)).Inc()
				}
			}
			continue
		}

		verdict.Analyzers[name] = AnalyzerResult{
			Passed:    passed,
			RiskScore: risk,
		}
		if !passed {
			verdict.Allowed = false
			if m != nil {
				m.ScanBlocks.WithLabelValues(name, string(direction)).Inc()
			}
		}
		current = sanitized
	}

	verdict.SanitizedText = current
	verdict.ComputedAt = time.Now()
	return verdict
}

// runAnalyzer invokes one analyzer, converting panics to errors so a
// misbehaving analyzer cannot take down the request or blind the rest of
// the pipeline.
func (p *Pipeline) runAnalyzer(ctx context.Context, a Analyzer, text, promptContext string) (sanitized string, passed bool, risk float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			sanitized, passed, risk = text, false, 0
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return a.Scan(ctx, text, promptContext)
}

// Names returns the registered analyzer names in pipeline order, with their
// enabled state.
func (p *Pipeline) Names() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make(map[string]bool, len(p.entries))
	for _, e := range p.entries {
		names[e.analyzer.Name()] = e.enabled
	}
	return names
}
