package analyzers

import (
	"context"
	"fmt"
	"regexp"
)

// piiPatterns match personally identifiable information. Order matters for
// redaction: more specific shapes run before broader ones so a credit card
// is not half-eaten by the phone pattern.
var piiPatternOrder = []string{"email", "ssn", "credit_card", "phone", "ip_address"}

var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
	"phone":       regexp.MustCompile(`\b(\+?1?[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
	"ip_address":  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// PII detects personally identifiable information and redacts it from the
// text it passes downstream. Redacted output text replaces the response
// body before it reaches the client; on input the matches feed the verdict
// and risk score only.
type PII struct {
	// blockThreshold is the number of PII occurrences at which the text is
	// blocked outright instead of redacted. Zero disables blocking.
	blockThreshold int
}

// NewPII creates a PII analyzer. blockThreshold of 0 means redact-only.
func NewPII(blockThreshold int) *PII {
	return &PII{blockThreshold: blockThreshold}
}

// Name implements scan.Analyzer.
func (a *PII) Name() string { return "pii" }

// Scan redacts each PII match in place with a typed placeholder and reports
// risk proportional to the number of matches. Because the pipeline feeds
// each analyzer the previous analyzer's output, everything after this one
// sees only redacted text.
func (a *PII) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	redacted := text
	matches := 0

	for _, name := range piiPatternOrder {
		pattern := piiPatterns[name]
		placeholder := fmt.Sprintf("[REDACTED-%s]", name)
		redacted = pattern.ReplaceAllStringFunc(redacted, func(string) string {
			matches++
			return placeholder
		})
	}

	if matches == 0 {
		return text, true, 0, nil
	}

	risk := float64(matches) / 10.0
	if risk > 1 {
		risk = 1
	}

	if a.blockThreshold > 0 && matches >= a.blockThreshold {
		return redacted, false, risk, nil
	}
	return redacted, true, risk, nil
}
