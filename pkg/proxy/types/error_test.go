package types

import (
	"errors"
	"net/http"
	"testing"

	"sentinel-hq/aegis/pkg/guard"
	"sentinel-hq/aegis/pkg/scan"
)

func TestFromGuardError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			"content block",
			&guard.BlockError{Direction: scan.DirectionOutput, Analyzer: "secrets", RiskScore: 1.0, Message: "blocked"},
			http.StatusForbidden, ErrorTypePermissionDenied, guard.CodeContentBlocked,
		},
		{
			"analyzer failure block",
			&guard.BlockError{Direction: scan.DirectionInput, Analyzer: "kw", AnalyzerFailure: true},
			http.StatusForbidden, ErrorTypePermissionDenied, guard.CodeAnalyzerError,
		},
		{
			"capacity",
			&guard.CapacityError{Model: "llama3", ParallelLimit: 2},
			http.StatusTooManyRequests, ErrorTypeRateLimitExceeded, guard.CodeCapacityExceeded,
		},
		{
			"timeout",
			&guard.TimeoutError{Stage: "forwarding", Cause: errors.New("deadline")},
			http.StatusGatewayTimeout, ErrorTypeGatewayTimeout, guard.CodeTimeout,
		},
		{
			"upstream",
			&guard.UpstreamError{Cause: errors.New("refused")},
			http.StatusBadGateway, ErrorTypeBadGateway, guard.CodeUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, status := FromGuardError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if resp.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Error.Type, tt.wantType)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestFromGuardErrorBlockDetail(t *testing.T) {
	resp, _ := FromGuardError(&guard.BlockError{
		Direction: scan.DirectionOutput,
		Analyzer:  "toxicity",
		RiskScore: 0.8,
		Message:   "The response was blocked by content policy.",
	})

	if resp.Error.Message != "The response was blocked by content policy." {
		t.Errorf("message = %q", resp.Error.Message)
	}
	b := resp.Error.Block
	if b == nil {
		t.Fatal("no block detail")
	}
	if b.Direction != "output" || b.Analyzer != "toxicity" || b.RiskScore != 0.8 {
		t.Errorf("block detail = %+v", b)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		errType string
		want    int
	}{
		{ErrorTypeInvalidRequest, http.StatusBadRequest},
		{ErrorTypePermissionDenied, http.StatusForbidden},
		{ErrorTypeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrorTypeBadGateway, http.StatusBadGateway},
		{ErrorTypeServiceUnavailable, http.StatusServiceUnavailable},
		{ErrorTypeGatewayTimeout, http.StatusGatewayTimeout},
		{ErrorTypeServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		d := ErrorDetail{Type: tt.errType}
		if got := d.HTTPStatusCode(); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.errType, got, tt.want)
		}
	}
}
