// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/stream"
)

// DefaultMockReply is the canned answer of the mock backend.
const DefaultMockReply = "Of course! The weather in London is currently 15°C with light clouds. The forecast for the rest of the week looks pleasant."

// DefaultMockInterval is the delay before each mock chunk.
const DefaultMockInterval = 100 * time.Millisecond

// ErrMockFailure is the read error injected by MockConfig.FailAfter.
var ErrMockFailure = errors.New("mock stream interrupted")

// MockConfig configures MockTransport.
type MockConfig struct {
	// Reply is split on single spaces; each word is sent with a trailing space.
	Reply string
	// Interval is the delay before each chunk. Zero sends without pacing.
	Interval time.Duration
	// Mode selects the frame encoding of each chunk.
	Mode stream.Mode
	// StatusCode of every response (default 200).
	StatusCode int
	// FailAfter makes the body fail with ErrMockFailure after that many
	// chunks. Zero never fails.
	FailAfter int
	Logger    *slog.Logger
}

// DefaultMockConfig returns the mock defaults.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Reply:      DefaultMockReply,
		Interval:   DefaultMockInterval,
		Mode:       stream.ModeRaw,
		StatusCode: http.StatusOK,
	}
}

// MockTransport answers every request with the configured reply, streamed
// chunk by chunk through a pipe. Each Do gets its own stream.
type MockTransport struct {
	cfg    MockConfig
	logger *slog.Logger
}

// NewMockTransport creates a mock transport.
func NewMockTransport(cfg MockConfig) *MockTransport {
	if cfg.Reply == "" {
		cfg.Reply = DefaultMockReply
	}
	if cfg.StatusCode == 0 {
		cfg.StatusCode = http.StatusOK
	}
	if cfg.Mode == "" {
		cfg.Mode = stream.ModeRaw
	}
	return &MockTransport{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger).With("component", "mock_transport"),
	}
}

// Chunks returns the encoded chunks a successful response carries, in order.
func (m *MockTransport) Chunks() [][]byte {
	return EncodeReply(m.cfg.Reply, m.cfg.Mode)
}

// Do returns immediately; the body is produced in the background until it
// is exhausted, ctx is cancelled, or the reader closes it.
func (m *MockTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if m.cfg.StatusCode < 200 || m.cfg.StatusCode >= 300 {
		return &Response{
			StatusCode: m.cfg.StatusCode,
			Body:       io.NopCloser(strings.NewReader(`{"error":"mock backend failure"}`)),
		}, nil
	}

	pr, pw := io.Pipe()
	go m.produce(ctx, pw)
	return &Response{StatusCode: m.cfg.StatusCode, Body: pr}, nil
}

func (m *MockTransport) produce(ctx context.Context, pw *io.PipeWriter) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if m.cfg.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(m.cfg.Interval), 1)
		limiter.Allow() // spend the initial token so the first chunk waits too
	}

	for i, chunk := range m.Chunks() {
		if m.cfg.FailAfter > 0 && i >= m.cfg.FailAfter {
			pw.CloseWithError(ErrMockFailure)
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := pw.Write(chunk); err != nil {
			m.logger.Debug("mock stream abandoned by reader", "error", err)
			return
		}
	}
	pw.Close()
}
