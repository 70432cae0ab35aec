// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"io"
	"net/http"
	"strconv"
)

// =============================================================================
// TRANSPORT BOUNDARY
// =============================================================================

// Request is one call to the backend.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the status code and an incrementally readable body. Callers
// must close Body.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Status returns the status line text, e.g. "500 Internal Server Error".
func (r *Response) Status() string {
	text := http.StatusText(r.StatusCode)
	if text == "" {
		return strconv.Itoa(r.StatusCode)
	}
	return strconv.Itoa(r.StatusCode) + " " + text
}

// Transport performs a request. Implementations return a chaterr
// KindNetwork error when the request could not be sent.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
