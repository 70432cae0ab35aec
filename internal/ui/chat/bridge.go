// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/session"
)

// Bridge forwards messages from other goroutines into a running program.
// Messages sent before Attach are dropped.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

// NewBridge creates an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach sets the program that receives messages.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

// Detach stops delivery, e.g. once the program has exited.
func (b *Bridge) Detach() {
	b.Attach(nil)
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Observe is a session.Observer delivering TransitionMsg.
func (b *Bridge) Observe(tr session.Transition) {
	b.send(TransitionMsg{Transition: tr})
}

// ConfigReloaded delivers ConfigReloadedMsg.
func (b *Bridge) ConfigReloaded(cfg *config.Config) {
	b.send(ConfigReloadedMsg{Config: cfg})
}
