// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
)

// StoreEventMsg carries one conversation store event.
type StoreEventMsg struct {
	Event storage.Event
}

// storeClosedMsg reports that the subscription channel closed.
type storeClosedMsg struct{}

// TransitionMsg carries one session state transition.
type TransitionMsg struct {
	Transition session.Transition
}

// ConfigReloadedMsg reports that the config file changed and was applied.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// submitMsg sends text as if typed and submitted.
type submitMsg struct {
	text string
}

// waitForEvent reads the next store event.
func waitForEvent(events <-chan storage.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return storeClosedMsg{}
		}
		return StoreEventMsg{Event: ev}
	}
}
