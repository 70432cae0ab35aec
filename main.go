// streamchat - a terminal chat client for streaming agent backends.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/cli"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/ui/chat"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		if err := runTUI(args); err != nil {
			cli.DisplayError(err)
			os.Exit(cli.GetExitCode(err))
		}
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.HandleVersion()
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		cli.PrintUsage()
		os.Exit(cli.ExitUsageError)
	}
}

// runTUI starts the full-screen chat. Without a terminal it falls back to
// ask for bare text and to the line REPL otherwise.
func runTUI(args cli.Args) error {
	initial := strings.TrimSpace(strings.Join(args.Raw, " "))
	if !cli.CanRunTUI() {
		if initial != "" {
			args.Query = initial
			cli.HandleAsk(args)
			return nil
		}
		cli.HandleChat(args)
		return nil
	}

	cfg, path, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}

	bridge := chat.NewBridge()
	app, err := cli.NewApp(cfg, path, cli.AppOptions{
		LogToFile: true,
		Observer:  bridge.Observe,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	theme := styles.NewTheme(cfg.UI.Theme)
	m := chat.New(app.Coordinator, chat.Options{
		Theme:        theme,
		Subtitle:     backendLabel(cfg),
		Markdown:     cfg.UI.Markdown,
		SidebarWidth: cfg.UI.SidebarWidth,
		Initial:      initial,
	})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reloads only affect later sends; a reply in flight keeps its options.
	watcher, err := config.NewWatcher(path, config.DefaultWatchDebounce, func(next *config.Config) {
		if err := cli.ApplyFlags(next, args); err != nil {
			app.Logger.Warn("reloaded config rejected", "error", err)
			return
		}
		app.Reconfigure(next)
		bridge.ConfigReloaded(next)
	}, app.Logger)
	if err != nil {
		app.Logger.Warn("config watcher disabled", "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Close()
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.Attach(p)
	defer bridge.Detach()

	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func backendLabel(cfg *config.Config) string {
	if cfg.Mock.Enabled {
		return "mock backend"
	}
	return cfg.Backend.URL
}
