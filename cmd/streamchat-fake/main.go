// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// streamchat-fake serves a local streaming chat backend for development.
//
// Usage: streamchat-fake [-addr 127.0.0.1:8787] [-format raw|tagged|ndjson] [-interval-ms 100]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/streamchat/internal/fakeserver"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/stream"
)

func main() {
	def := fakeserver.DefaultConfig()

	addr := flag.String("addr", def.Addr, "listen address")
	format := flag.String("format", string(def.Mode), "default frame format (raw, tagged, ndjson)")
	intervalMs := flag.Int("interval-ms", int(def.Interval/time.Millisecond), "delay before each chunk")
	reply := flag.String("reply", def.Reply, "reply text streamed word by word")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	flag.Parse()

	if err := run(*addr, *format, *reply, *intervalMs, *logLevel, *logJSON); err != nil {
		fmt.Fprintf(os.Stderr, "streamchat-fake: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, format, reply string, intervalMs int, level string, asJSON bool) error {
	mode, err := stream.ParseMode(format)
	if err != nil {
		return err
	}
	if intervalMs < 0 {
		return fmt.Errorf("interval-ms must be >= 0, got %d", intervalMs)
	}

	logFormat := "text"
	if asJSON {
		logFormat = "json"
	}
	logger, closer, err := logging.New(logging.Options{Level: level, Format: logFormat, Fallback: os.Stderr})
	if err != nil {
		return err
	}
	defer closer.Close()

	gin.SetMode(gin.ReleaseMode)

	srv := fakeserver.New(fakeserver.Config{
		Addr:     addr,
		Reply:    reply,
		Interval: time.Duration(intervalMs) * time.Millisecond,
		Mode:     mode,
		Logger:   logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend listening", "addr", addr, "format", mode)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
