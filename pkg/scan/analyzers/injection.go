// Package analyzers provides the built-in content-safety analyzers that ship
// with Aegis. Each analyzer satisfies scan.Analyzer and stays cheap enough to
// run on every request; model-backed analyzers can be registered alongside
// them through the same interface.
package analyzers

import (
	"context"
	"regexp"
	"strings"
)

// defaultInjectionPatterns are phrase patterns commonly seen in prompt
// injection and jailbreak attempts.
var defaultInjectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"ignore the above",
	"disregard your instructions",
	"disregard all prior",
	"forget your instructions",
	"you are now",
	"pretend you are",
	"act as if you have no restrictions",
	"your new instructions are",
	"system prompt",
	"developer mode",
}

// Injection detects prompt-injection attempts using phrase patterns.
// It runs on the input direction only.
type Injection struct {
	patterns []*regexp.Regexp
	raw      []string
}

// NewInjection creates an injection analyzer. Passing no patterns uses the
// built-in set; custom patterns replace it.
func NewInjection(patterns ...string) *Injection {
	raw := patterns
	if len(raw) == 0 {
		raw = defaultInjectionPatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, pattern := range raw {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(pattern)))
	}

	return &Injection{patterns: compiled, raw: raw}
}

// Name implements scan.Analyzer.
func (a *Injection) Name() string { return "injection" }

// Scan checks the text against the injection patterns. The text is never
// modified. Confidence rises with the number of distinct matched patterns.
func (a *Injection) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	matched := 0
	for _, pattern := range a.patterns {
		if pattern.MatchString(text) {
			matched++
		}
	}

	if matched == 0 {
		return text, true, 0, nil
	}

	risk := 0.75
	switch {
	case matched >= 3:
		risk = 0.95
	case matched == 2:
		risk = 0.85
	}

	return text, false, risk, nil
}

// matchedPatterns returns the raw patterns found in text, used by tests.
func (a *Injection) matchedPatterns(text string) []string {
	var found []string
	lower := strings.ToLower(text)
	for _, raw := range a.raw {
		if strings.Contains(lower, strings.ToLower(raw)) {
			found = append(found, raw)
		}
	}
	return found
}
