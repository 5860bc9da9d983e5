package scan

import "time"

// Direction identifies which side of the proxy a scan applies to.
type Direction string

const (
	// DirectionInput scans request text before it reaches the backend.
	DirectionInput Direction = "input"

	// DirectionOutput scans response text before it reaches the client.
	DirectionOutput Direction = "output"
)

// AnalyzerResult is the outcome of one analyzer within a pipeline run.
type AnalyzerResult struct {
	// Passed reports whether the analyzer allowed the text.
	Passed bool `json:"passed"`

	// RiskScore is the analyzer's risk estimate in [0, 1].
	RiskScore float64 `json:"risk_score"`

	// Error holds the analyzer's internal failure, if any. A failed
	// analyzer never halts the rest of the pipeline; whether it blocks
	// depends on the fail-closed policy.
	Error string `json:"error,omitempty"`
}

// Verdict is the combined result of a full pipeline run over one piece of
// text. Verdicts are immutable once produced and are what the cache stores.
type Verdict struct {
	// Allowed is the logical AND of all analyzers' Passed flags,
	// failures included per policy.
	Allowed bool `json:"allowed"`

	// SanitizedText is the text after all analyzers ran, with any
	// redactions applied. Analyzer i receives the text produced by
	// analyzer i-1.
	SanitizedText string `json:"sanitized_text"`

	// Analyzers holds the per-analyzer results, keyed by analyzer name.
	Analyzers map[string]AnalyzerResult `json:"analyzers"`

	// ComputedAt is when the pipeline run finished.
	ComputedAt time.Time `json:"computed_at"`
}

// FailingAnalyzer returns the name and result of the highest-risk analyzer
// that did not pass, or "" if the verdict is allowed.
func (v *Verdict) FailingAnalyzer() (string, AnalyzerResult) {
	var worstName string
	var worst AnalyzerResult
	for name, result := range v.Analyzers {
		if result.Passed {
			continue
		}
		if worstName == "" || result.RiskScore > worst.RiskScore {
			worstName = name
			worst = result
		}
	}
	return worstName, worst
}

// MaxRiskScore returns the highest risk score across all analyzers.
func (v *Verdict) MaxRiskScore() float64 {
	max := 0.0
	for _, result := range v.Analyzers {
		if result.RiskScore > max {
			max = result.RiskScore
		}
	}
	return max
}
