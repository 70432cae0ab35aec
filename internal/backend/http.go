// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/logging"
)

// =============================================================================
// HTTP TRANSPORT CONFIGURATION
// =============================================================================

// HTTPConfig holds options for HTTPTransport.
type HTTPConfig struct {
	// ResponseHeaderTimeout bounds the wait for response headers. Zero means
	// no limit. Reading the body is never timed out.
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds connection establishment (default: 5s).
	DialTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	Logger *slog.Logger
}

// DefaultHTTPConfig returns the default transport configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		DialTimeout: 5 * time.Second,
		UserAgent:   "streamchat",
	}
}

// =============================================================================
// HTTP TRANSPORT
// =============================================================================

// HTTPTransport sends requests with net/http. It is safe for concurrent use.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "streamchat"
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext
	base.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout

	return &HTTPTransport{
		// No client timeout: it would cut long streams off mid-body.
		client:    &http.Client{Transport: base},
		userAgent: cfg.UserAgent,
		logger:    logging.OrDefault(cfg.Logger).With("component", "http_transport"),
	}
}

// Do sends req. Non-2xx statuses are returned as a Response, not an error;
// only failures to obtain a response become KindNetwork errors.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, chaterr.Network("failed to create request", err)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		} else if errors.Is(err, context.Canceled) {
			msg = "request cancelled"
		}
		t.logger.Debug("request failed", "method", method, "url", req.URL, "error", err)
		return nil, chaterr.Network(msg, err)
	}

	t.logger.Debug("response headers received",
		"method", method,
		"url", req.URL,
		"status", resp.StatusCode,
		"latency", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
