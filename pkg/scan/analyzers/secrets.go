package analyzers

import (
	"context"
	"regexp"
)

// secretPatterns match common credential shapes. Named so a blocked request
// can report which kind of secret was found without echoing it.
var secretPatterns = map[string]*regexp.Regexp{
	"aws_access_key":   regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	"openai_api_key":   regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	"github_token":     regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	"slack_token":      regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	"private_key":      regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	"generic_password": regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S{8,}`),
}

// Secrets detects credentials and API keys in text and blocks when any are
// found. It runs on both directions: inbound to keep secrets out of prompts,
// outbound to keep a compromised backend from leaking them.
type Secrets struct{}

// NewSecrets creates a secret-detection analyzer.
func NewSecrets() *Secrets {
	return &Secrets{}
}

// Name implements scan.Analyzer.
func (a *Secrets) Name() string { return "secrets" }

// Scan blocks on any credential match. The text is never modified; redaction
// is the pii analyzer's job and secrets are blocked outright instead.
func (a *Secrets) Scan(ctx context.Context, text, promptContext string) (string, bool, float64, error) {
	for _, pattern := range secretPatterns {
		if pattern.MatchString(text) {
			return text, false, 1.0, nil
		}
	}
	return text, true, 0, nil
}
