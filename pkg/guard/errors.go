package guard

import (
	"errors"
	"fmt"

	"sentinel-hq/aegis/pkg/scan"
)

// Machine-readable error codes carried in responses to clients.
const (
	CodeCapacityExceeded = "capacity_exceeded"
	CodeContentBlocked   = "content_blocked"
	CodeUpstreamError    = "upstream_error"
	CodeAnalyzerError    = "analyzer_error"
	CodeTimeout          = "timeout"
)

// CapacityError is returned when a model's wait-line is full and the
// request was rejected without queuing.
type CapacityError struct {
	// Model is the backend model the request targeted.
	Model string

	// ParallelLimit and QueueLimit are the limits in force at rejection.
	ParallelLimit int64
	QueueLimit    int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("model %q at capacity (parallel=%d queue=%d)", e.Model, e.ParallelLimit, e.QueueLimit)
}

// BlockError is returned when the scan pipeline disallowed the content.
type BlockError struct {
	// Direction is which side of the exchange was blocked.
	Direction scan.Direction

	// Analyzer is the first analyzer that failed the content.
	Analyzer string

	// RiskScore is the highest risk score across the verdict.
	RiskScore float64

	// Message is the localized user-facing explanation.
	Message string

	// AnalyzerFailure is true when the block is the fail-closed folding of
	// an analyzer's internal error rather than a content judgment.
	AnalyzerFailure bool
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("content blocked by %s analyzer (%s, risk %.2f)", e.Analyzer, e.Direction, e.RiskScore)
}

// Code returns the machine-readable code for the block, distinguishing
// genuine content blocks from fail-closed analyzer failures.
func (e *BlockError) Code() string {
	if e.AnalyzerFailure {
		return CodeAnalyzerError
	}
	return CodeContentBlocked
}

// UpstreamError is returned when the backend could not serve the request.
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend request failed: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// TimeoutError is returned when the request deadline expired or the client
// disconnected before the request completed.
type TimeoutError struct {
	Stage string
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request abandoned during %s: %v", e.Stage, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// Code maps any guard error to its machine-readable code. Unrecognized
// errors map to the upstream code, the only category left.
func Code(err error) string {
	var (
		capErr     *CapacityError
		blockErr   *BlockError
		timeoutErr *TimeoutError
	)
	switch {
	case errors.As(err, &capErr):
		return CodeCapacityExceeded
	case errors.As(err, &blockErr):
		return blockErr.Code()
	case errors.As(err, &timeoutErr):
		return CodeTimeout
	default:
		return CodeUpstreamError
	}
}

// blockErrorFromVerdict builds the user-facing block error for a failed
// verdict, localizing the message against the client's text.
func blockErrorFromVerdict(v *scan.Verdict, direction scan.Direction, clientText string) *BlockError {
	name, result := v.FailingAnalyzer()
	return &BlockError{
		Direction:       direction,
		Analyzer:        name,
		RiskScore:       v.MaxRiskScore(),
		Message:         blockMessage(direction, detectLanguage(clientText)),
		AnalyzerFailure: result.Error != "",
	}
}
