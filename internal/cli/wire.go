// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// wire.go - Builds the conversation store, transport and coordinator from
// configuration and command-line flags.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/stream"
)

// DefaultLogFileName is used by the TUI when no log file is configured.
const DefaultLogFileName = "streamchat.log"

// =============================================================================
// CONFIG RESOLUTION
// =============================================================================

// LoadConfig loads the config named by --config, or the default location,
// and applies the command-line overrides. It returns the config and the
// path it was read from (or would be written to).
func LoadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if args.ConfigPath != "" {
		path = args.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		if path, err = config.ConfigPath(); err != nil {
			path = ""
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, &ConfigError{Path: path, Err: err}
	}

	if err := ApplyFlags(cfg, args); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// ApplyFlags overlays command-line flags on cfg and revalidates it.
// --url selects the real backend unless --mock is also given.
func ApplyFlags(cfg *config.Config, args Args) error {
	if args.URL != "" {
		cfg.Backend.URL = args.URL
		cfg.Mock.Enabled = false
	}
	if args.FrameMode != "" {
		cfg.Backend.FrameMode = args.FrameMode
	}
	if args.Model != "" {
		cfg.Backend.Model = args.Model
	}
	if args.Mock != nil {
		cfg.Mock.Enabled = *args.Mock
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// =============================================================================
// COMPONENT CONSTRUCTION
// =============================================================================

// FrameMode is the frame encoding replies arrive in: mock.frame_mode when
// the mock is on and sets one, backend.frame_mode otherwise. The decoder
// and the mock must both use it.
func FrameMode(cfg *config.Config) stream.Mode {
	if cfg.Mock.Enabled && cfg.Mock.FrameMode != "" {
		return stream.Mode(cfg.Mock.FrameMode)
	}
	return stream.Mode(cfg.Backend.FrameMode)
}

// SessionOptions maps configuration onto request options.
func SessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		URL:            cfg.Backend.URL,
		Method:         cfg.Backend.Method,
		Headers:        cfg.Backend.Headers,
		Mode:           FrameMode(cfg),
		Model:          cfg.Backend.Model,
		ThreadIDPrefix: cfg.Backend.ThreadIDPrefix,
		IncludeHistory: cfg.Backend.IncludeHistory,
		Generation: backend.Generation{
			Temperature: cfg.Backend.Generation.Temperature,
			TopP:        cfg.Backend.Generation.TopP,
			MaxTokens:   cfg.Backend.Generation.MaxTokens,
		},
		FailureMessage: cfg.Chat.FailureMessage,
	}
}

// StoreOptions maps configuration onto conversation store options.
func StoreOptions(cfg *config.Config, logger *slog.Logger) storage.Options {
	opts := storage.DefaultOptions()
	opts.DefaultTitle = cfg.Chat.DefaultTitle
	opts.TimestampLayout = cfg.Chat.TimestampFormat
	opts.TitleMaxWidth = cfg.Chat.TitleMaxWidth
	opts.Logger = logger
	return opts
}

// NewTransport returns the mock transport when the mock is enabled and an
// HTTP transport otherwise. The mock streams in FrameMode(cfg).
func NewTransport(cfg *config.Config, logger *slog.Logger) backend.Transport {
	if cfg.Mock.Enabled {
		mc := backend.DefaultMockConfig()
		mc.Reply = cfg.Mock.Reply
		mc.Interval = time.Duration(cfg.Mock.ChunkIntervalMs) * time.Millisecond
		mc.Mode = FrameMode(cfg)
		mc.FailAfter = cfg.Mock.FailAfter
		mc.Logger = logger
		return backend.NewMockTransport(mc)
	}

	hc := backend.DefaultHTTPConfig()
	hc.ResponseHeaderTimeout = time.Duration(cfg.Backend.ResponseHeaderTimeoutSecs) * time.Second
	hc.UserAgent = "streamchat/" + Version
	hc.Logger = logger
	return backend.NewHTTPTransport(hc)
}

// =============================================================================
// APP
// =============================================================================

// AppOptions selects where logs go and who observes session transitions.
type AppOptions struct {
	// LogOutput receives logs when no log file is configured. Nil discards.
	LogOutput io.Writer
	// LogToFile forces a log file, defaulting to DefaultLogFileName in the
	// config directory. The TUI sets it since it owns the terminal.
	LogToFile bool
	Observer  session.Observer
}

// App bundles the wired components of one streamchat process.
type App struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *slog.Logger
	Store       *storage.ConversationStore
	Transport   backend.Transport
	Coordinator *session.Coordinator

	logCloser io.Closer
}

// NewApp builds the logger, store, transport and coordinator for cfg.
func NewApp(cfg *config.Config, path string, opts AppOptions) (*App, error) {
	logFile := cfg.Log.File
	if logFile == "" && opts.LogToFile {
		dir, err := config.ConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		logFile = filepath.Join(dir, DefaultLogFileName)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		File:     logFile,
		Fallback: opts.LogOutput,
	})
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("logging: %w", err)}
	}
	slog.SetDefault(logger)

	store := storage.NewConversationStore(StoreOptions(cfg, logger))
	transport := NewTransport(cfg, logger)
	coord := session.NewCoordinator(session.Config{
		Store:     store,
		Transport: transport,
		Options:   SessionOptions(cfg),
		Observer:  opts.Observer,
		Logger:    logger,
	})

	logger.Info("streamchat started",
		"version", Version,
		"config", path,
		"mock", cfg.Mock.Enabled,
		"backend", cfg.Backend.URL,
		"frame_mode", string(FrameMode(cfg)))

	return &App{
		Config:      cfg,
		ConfigPath:  path,
		Logger:      logger,
		Store:       store,
		Transport:   transport,
		Coordinator: coord,
		logCloser:   closer,
	}, nil
}

// Reconfigure applies a reloaded config to later sends. The transport is
// rebuilt so mock and frame mode changes take effect; the store is kept and
// a session already in flight keeps its options and transport.
func (a *App) Reconfigure(cfg *config.Config) {
	transport := NewTransport(cfg, a.Logger)
	a.Coordinator.Reconfigure(SessionOptions(cfg), transport)
	a.Config = cfg
	a.Transport = transport
	a.Logger.Info("configuration reloaded",
		"mock", cfg.Mock.Enabled,
		"backend", cfg.Backend.URL,
		"frame_mode", string(FrameMode(cfg)),
		"model", cfg.Backend.Model)
}

// Close flushes and closes the log file, if any.
func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

func mockLabel(cfg *config.Config) string {
	if cfg.Mock.Enabled {
		return "mock (" + strconv.Itoa(cfg.Mock.ChunkIntervalMs) + "ms/chunk)"
	}
	return cfg.Backend.URL
}
