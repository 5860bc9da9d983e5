package analyzers

import (
	"context"
	"strings"
)

// refusalMarkers are phrases that indicate the backend produced a canned
// refusal rather than a substantive answer.
var refusalMarkers = []string{
	"i cannot help with",
	"i can't help with",
	"i'm unable to assist",
	"i am unable to assist",
	"as an ai language model",
	"i cannot provide that information",
	"i won't be able to help",
}

// Refusal is an output-direction analyzer that flags canned backend
// refusals. It needs the original prompt as context: a refusal to a
// benign prompt is a quality signal worth surfacing, while a refusal to a
// prompt the input pipeline already flagged is expected. It raises risk but
// never blocks on its own.
type Refusal struct{}

// NewRefusal creates a refusal-detection analyzer.
func NewRefusal() *Refusal {
	return &Refusal{}
}

// Name implements scan.Analyzer.
func (a *Refusal) Name() string { return "refusal" }

// Scan reports a non-zero risk when the response opens with a refusal
// marker. The text is never modified and the check always passes.
func (a *Refusal) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	lower := strings.ToLower(text)

	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			risk := 0.3
			// With the prompt in hand the refusal is more notable: the
			// input pipeline already judged that prompt clean.
			if promptContext != "" {
				risk = 0.5
			}
			return text, true, risk, nil
		}
	}

	return text, true, 0, nil
}
