// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands of
// streamchat.
//
// # Key Types
//
//   - Command: the command selected by ParseArgs
//   - Args: global flags plus command-specific values
//   - App: the logger, conversation store, transport and coordinator
//     wired from configuration
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    cli.HandleAsk(args)
//	case cli.CmdChat:
//	    cli.HandleChat(args)
//	}
//
// # Commands
//
//   - (default): TUI, started by main
//   - ask: one message, reply streamed to stdout
//   - chat: line REPL with /new, /list, /switch, /delete, /clear
//   - config: show, path, init, get, set, keys, reset
//   - version, help
package cli
