// Package types defines the wire types the proxy shares across handlers:
// the OpenAI-compatible error envelope and the block metadata attached to
// content-policy rejections.
package types

import (
	"errors"
	"net/http"

	"sentinel-hq/aegis/pkg/guard"
)

// ErrorResponse is the OpenAI-compatible error envelope. Every error the
// proxy returns uses it, on both dialects, so existing SDKs can parse it.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	// Message is the human-readable, possibly localized explanation.
	Message string `json:"message"`

	// Type categorizes the error in OpenAI's taxonomy.
	Type string `json:"type"`

	// Param names the offending parameter, when applicable.
	Param string `json:"param,omitempty"`

	// Code is the machine-readable aegis code: capacity_exceeded,
	// content_blocked, analyzer_error, upstream_error, or timeout.
	Code string `json:"code,omitempty"`

	// Block carries structured details for content blocks.
	Block *BlockDetail `json:"block,omitempty"`
}

// BlockDetail describes why content was blocked.
type BlockDetail struct {
	// Direction is "input" or "output".
	Direction string `json:"direction"`

	// Analyzer names the failing analyzer.
	Analyzer string `json:"analyzer"`

	// RiskScore is the verdict's highest risk score.
	RiskScore float64 `json:"risk_score"`
}

// Error type constants matching the OpenAI API taxonomy.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeServiceUnavailable = "service_unavailable"
)

// NewErrorResponse creates an error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for malformed requests.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewServerError creates an error response for internal failures.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", "internal_error")
}

// FromGuardError maps a guard taxonomy error to its wire form and HTTP
// status.
//
//	capacity_exceeded -> 429, content_blocked / analyzer_error -> 403,
//	timeout -> 504, upstream_error -> 502
func FromGuardError(err error) (*ErrorResponse, int) {
	var blockErr *guard.BlockError
	if errors.As(err, &blockErr) {
		resp := NewErrorResponse(blockErr.Message, ErrorTypePermissionDenied, "", blockErr.Code())
		resp.Error.Block = &BlockDetail{
			Direction: string(blockErr.Direction),
			Analyzer:  blockErr.Analyzer,
			RiskScore: blockErr.RiskScore,
		}
		return resp, http.StatusForbidden
	}

	var capErr *guard.CapacityError
	if errors.As(err, &capErr) {
		return NewErrorResponse(
			"The model is at capacity. Please retry shortly.",
			ErrorTypeRateLimitExceeded, "", guard.CodeCapacityExceeded,
		), http.StatusTooManyRequests
	}

	var timeoutErr *guard.TimeoutError
	if errors.As(err, &timeoutErr) {
		return NewErrorResponse(
			"The request did not complete in time.",
			ErrorTypeGatewayTimeout, "", guard.CodeTimeout,
		), http.StatusGatewayTimeout
	}

	return NewErrorResponse(
		"The backend failed to serve the request.",
		ErrorTypeBadGateway, "", guard.CodeUpstreamError,
	), http.StatusBadGateway
}

// HTTPStatusCode returns the status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypePermissionDenied:
		return http.StatusForbidden
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
