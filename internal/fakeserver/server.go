// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fakeserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/stream"
)

// DefaultAddr is the listen address of streamchat-fake.
const DefaultAddr = "127.0.0.1:8787"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the fake backend.
type Config struct {
	Addr     string
	Reply    string
	Interval time.Duration
	// Mode is used when the request has no ?format= parameter.
	Mode   stream.Mode
	Logger *slog.Logger
}

// DefaultConfig returns the fake server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:     DefaultAddr,
		Reply:    backend.DefaultMockReply,
		Interval: backend.DefaultMockInterval,
		Mode:     stream.ModeRaw,
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the fake streaming backend.
type Server struct {
	cfg    Config
	engine *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// New creates a server with its routes registered.
func New(cfg Config) *Server {
	d := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.Reply == "" {
		cfg.Reply = d.Reply
	}
	if cfg.Mode == "" {
		cfg.Mode = d.Mode
	}

	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: logging.OrDefault(cfg.Logger).With("component", "fakeserver"),
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api", noBuffering())
	api.POST("/chat", s.handleChat)
	api.POST("/fail", s.handleFail)
	s.engine.GET("/health", s.handleHealth)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("fake backend listening", "addr", s.cfg.Addr, "default_format", string(s.cfg.Mode))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("fake backend shutting down")
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleChat(c *gin.Context) {
	var req backend.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.ErrorPayload{Error: "invalid request: " + err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, backend.ErrorPayload{Error: "messages must not be empty"})
		return
	}

	mode := s.cfg.Mode
	if f := c.Query("format"); f != "" {
		m, err := stream.ParseMode(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, backend.ErrorPayload{Error: err.Error()})
			return
		}
		mode = m
	}
	interval := s.cfg.Interval
	if v := c.Query("interval_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			c.JSON(http.StatusBadRequest, backend.ErrorPayload{Error: "interval_ms must be a non-negative integer"})
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}
	failAfter, _ := strconv.Atoi(c.Query("fail_after"))

	s.logger.Debug("streaming reply",
		"thread_id", req.ThreadID,
		"messages", len(req.Messages),
		"format", string(mode))

	c.Header("Content-Type", contentType(mode))
	if mode == stream.ModeTagged {
		c.Header("X-Vercel-AI-Data-Stream", "v1")
	}
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for i, chunk := range backend.EncodeReply(s.cfg.Reply, mode) {
		if failAfter > 0 && i >= failAfter {
			s.abort(c)
			return
		}
		if interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// abort drops the connection mid-body.
func (s *Server) abort(c *gin.Context) {
	conn, _, err := c.Writer.Hijack()
	if err != nil {
		s.logger.Warn("could not hijack connection to abort stream", "error", err)
		return
	}
	_ = conn.Close()
}

func (s *Server) handleFail(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, backend.ErrorPayload{Error: "simulated backend failure"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "format": string(s.cfg.Mode)})
}

func contentType(mode stream.Mode) string {
	if mode == stream.ModeNDJSON {
		return "application/x-ndjson"
	}
	return "text/plain; charset=utf-8"
}
