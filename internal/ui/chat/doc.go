// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the Bubble Tea chat view for streamchat.

The model never mutates conversations itself. It calls the session
Coordinator for every action and redraws from store snapshots when a
store event or a session transition arrives.

# Components

  - Model (model.go): sidebar, message viewport, input, spinner, error line
  - Update loop (update.go): keys, store events, transitions, resize
  - View (view.go): layout and message rendering
  - Bridge (bridge.go): forwards session transitions into the program
  - KeyMap (keys.go): bindings and help text

# Wiring

	bridge := chat.NewBridge()
	app, _ := cli.NewApp(cfg, path, cli.AppOptions{Observer: bridge.Observe, LogToFile: true})
	m := chat.New(app.Coordinator, chat.Options{Theme: styles.NewTheme(cfg.UI.Theme)})
	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.Attach(p)
	p.Run()

Store events are read by a command that waits on the subscription channel
and is re-issued after each event.
*/
package chat
