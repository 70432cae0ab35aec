// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/session"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StoreEventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case storeClosedMsg:
		return m, nil

	case submitMsg:
		m.input.SetValue(msg.text)
		return m.submit()

	case TransitionMsg:
		return m.handleTransition(msg.Transition)

	case ConfigReloadedMsg:
		if msg.Config != nil {
			m.useMD = msg.Config.UI.Markdown
		}
		m.notice = "Configuration reloaded"
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// header + status line + input (border and line) + help
	const reserved = 5
	vpHeight := m.height - reserved
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.mainWidth()
	m.viewport.Height = vpHeight

	inputWidth := m.width - 4
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.help.Width = m.width

	m.ready = true
	m.refresh()
	return m, nil
}

func (m Model) showSidebar() bool {
	return m.width >= minWidthForSidebar
}

// mainWidth is the message area width next to the sidebar and its border.
func (m Model) mainWidth() int {
	w := m.width
	if m.showSidebar() {
		w -= m.sidebarWidth + 1
	}
	if w < 1 {
		w = 1
	}
	return w
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.loading && m.cancelSend != nil {
			m.cancelSend()
		}
		m.notice = ""
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.coord.NewConversation()
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.cycleConversation(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.cycleConversation(-1)
		return m, nil

	case key.Matches(msg, m.keys.DeleteChat):
		m.coord.DeleteConversation(m.coord.Active())
		return m, nil

	case key.Matches(msg, m.keys.ClearChat):
		m.coord.ClearConversation(m.coord.Active())
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	if m.loading {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// cycleConversation selects the conversation delta places from the active
// one, wrapping around.
func (m *Model) cycleConversation(delta int) {
	list := m.coord.Conversations()
	if len(list) < 2 {
		return
	}
	cur := 0
	for i, s := range list {
		if s.Active {
			cur = i
			break
		}
	}
	next := (cur + delta + len(list)) % len(list)
	m.coord.SelectConversation(list[next].ID)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	text := m.input.Value()

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := m.coord.Send(ctx, text); err != nil {
		cancel()
		if !errors.Is(err, session.ErrEmptyMessage) {
			m.errLine = err.Error()
		}
		return m, nil
	}

	m.cancelSend = cancel
	m.errLine = ""
	m.notice = ""
	m.input.Reset()
	m.setLoading(true)
	m.refresh()
	return m, m.spinner.Tick
}

// =============================================================================
// SESSION TRANSITIONS
// =============================================================================

func (m Model) handleTransition(tr session.Transition) (tea.Model, tea.Cmd) {
	if tr.To != session.StateIdle {
		if !m.loading {
			m.setLoading(true)
			m.refresh()
			return m, m.spinner.Tick
		}
		return m, nil
	}

	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}
	m.errLine = m.coord.LastError()
	if h := m.coord.Current(); h != nil && h.Session().Stopped() {
		m.notice = NoticeStopped
	}
	m.setLoading(m.coord.IsLoading())
	m.refresh()
	if m.loading {
		return m, nil
	}
	return m, textinput.Blink
}

// setLoading disables or re-enables the input.
func (m *Model) setLoading(loading bool) {
	m.loading = loading
	if loading {
		m.input.Blur()
		m.input.Placeholder = PlaceholderWaiting
		return
	}
	m.input.Placeholder = PlaceholderReady
	m.input.Focus()
}

// =============================================================================
// CONTENT
// =============================================================================

// refresh re-renders the active conversation into the viewport, keeping
// the view pinned to the bottom if it was there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	conv := m.coord.ActiveSnapshot()
	m.viewport.SetContent(m.renderConversation(conv, m.liveMessageID(conv)))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// liveMessageID is the id of the placeholder still being streamed into
// conv, or "".
func (m Model) liveMessageID(conv model.Conversation) string {
	if !m.loading {
		return ""
	}
	h := m.coord.Current()
	if h == nil || h.Session().Bound() != conv.ID {
		return ""
	}
	last, ok := conv.LastMessage()
	if !ok || !last.IsAgent() {
		return ""
	}
	return last.ID
}
