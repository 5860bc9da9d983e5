// Package upstream talks to the inference backend over HTTP. It provides
// the pooled client base the dialect adapters (openai, ollama) build on,
// plus the shared streaming frame reader.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"sentinel-hq/aegis/pkg/config"
)

// Client is the pooled HTTP client shared by the dialect adapters.
//
// Guarded inference calls go through Post and are never retried: a connect
// failure surfaces once to the caller, since replaying a generation is both
// slow and non-idempotent. Passthrough metadata reads go through Get, which
// retries transient failures with exponential backoff.
//
// The configured timeout bounds non-streaming exchanges and the wait for
// response headers. http.Client.Timeout stays unset: it would cut the body
// of any stream outliving it, and streaming reads are governed by the
// request context alone.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client for the configured backend.
func NewClient(cfg config.UpstreamConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: transport,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Post sends one inference request and returns the open response. The
// caller owns resp.Body. Non-2xx statuses are consumed and returned as
// *Error; context expiry maps to *TimeoutError. The call is bounded by ctx
// alone, so streams stay open as long as the request context allows;
// PostJSON adds the configured timeout for buffered exchanges.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Endpoint: path, Cause: ctx.Err()}
		}
		return nil, &Error{Endpoint: path, Message: "backend unreachable", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		return nil, &Error{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    string(errorBody),
		}
	}
	return resp, nil
}

// PostJSON sends one inference request and reads the whole response body,
// within the configured timeout.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Endpoint: path, Cause: ctx.Err()}
		}
		return nil, &Error{Endpoint: path, Message: "read backend response", Cause: err}
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// Get fetches a backend metadata endpoint for passthrough. Transient
// failures (network errors, 5xx) are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))

	var out *Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(&Error{
				Endpoint:   path,
				StatusCode: resp.StatusCode,
				Message:    string(data),
			})
		}
		out = &Response{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Endpoint: path, Cause: ctx.Err()}
		}
		var ue *Error
		if !errors.As(err, &ue) {
			err = &Error{Endpoint: path, Message: "backend unreachable", Cause: err}
		}
		return nil, err
	}
	return out, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
