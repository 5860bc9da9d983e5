package analyzers

import (
	"context"
	"strings"
)

// categoryKeywords maps toxicity categories to their keyword lists.
// Keyword matching is intentionally simple; a model-backed analyzer can be
// registered in front of or behind this one for higher fidelity.
var categoryKeywords = map[string][]string{
	"violence": {
		"kill", "murder", "attack", "weapon", "bomb", "shoot",
	},
	"hate_speech": {
		"racist", "bigot", "slur", "supremacist",
	},
	"self_harm": {
		"suicide", "self-harm", "hurt myself",
	},
	"adult_content": {
		"porn", "explicit", "nsfw",
	},
}

// Toxicity scores text against category keyword lists and blocks when the
// weighted match count crosses its threshold. It runs on both directions.
type Toxicity struct {
	categories map[string][]string
	threshold  int
}

// NewToxicity creates a toxicity analyzer with the built-in categories.
// threshold is the number of keyword matches at which the text is blocked;
// values below 1 use the default of 2.
func NewToxicity(threshold int) *Toxicity {
	if threshold < 1 {
		threshold = 2
	}
	return &Toxicity{
		categories: categoryKeywords,
		threshold:  threshold,
	}
}

// Name implements scan.Analyzer.
func (a *Toxicity) Name() string { return "toxicity" }

// Scan counts category keyword matches. The text is never modified. Risk
// scales with the match count relative to the threshold, capped at 1.0.
func (a *Toxicity) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	lower := strings.ToLower(text)

	matches := 0
	for _, keywords := range a.categories {
		for _, keyword := range keywords {
			matches += strings.Count(lower, keyword)
		}
	}

	if matches == 0 {
		return text, true, 0, nil
	}

	risk := float64(matches) / float64(a.threshold*2)
	if risk > 1 {
		risk = 1
	}

	return text, matches < a.threshold, risk, nil
}
