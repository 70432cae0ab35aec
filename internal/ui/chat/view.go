// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/util"
)

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.showSidebar() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.renderInput(),
		m.theme.Help.Render(m.help.View(m.keys)),
	)
}

// =============================================================================
// HEADER & SIDEBAR
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(m.title)
	if m.subtitle != "" {
		title += "  " + m.theme.HeaderSubtitle.Render(m.subtitle)
	}
	return m.theme.Header.Width(m.width).Render(title)
}

func (m Model) renderSidebar() string {
	inner := m.sidebarWidth - 1
	lines := []string{m.theme.SidebarTitle.Render("Chats")}

	for i, s := range m.coord.Conversations() {
		label := util.TruncateWidth(fmt.Sprintf("%d. %s", i+1, s.Title), inner-1)
		style := m.theme.SessionItem
		if s.Active {
			style = m.theme.SessionItemSelected
		}
		lines = append(lines,
			style.Width(inner).Render(label),
			m.theme.SessionMeta.Render(messageCount(s.MessageCount)),
		)
	}

	return m.theme.Sidebar.
		Width(m.sidebarWidth).
		Height(m.viewport.Height).
		MaxHeight(m.viewport.Height).
		Render(strings.Join(lines, "\n"))
}

func messageCount(n int) string {
	if n == 1 {
		return "1 message"
	}
	return fmt.Sprintf("%d messages", n)
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderConversation renders every message of conv. liveID marks the
// placeholder still receiving fragments; it is shown raw with the spinner.
func (m Model) renderConversation(conv model.Conversation, liveID string) string {
	if conv.IsEmpty() {
		return m.theme.Empty.Render("No messages yet. Ask about the weather anywhere.")
	}

	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}
	bubbleWidth := width * 4 / 5

	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, msg.ID == liveID, bubbleWidth))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, live bool, width int) string {
	label := m.theme.AgentLabel.Render(msg.Sender.DisplayName())
	bubble := m.theme.AgentBubble
	if msg.IsUser() {
		label = m.theme.UserLabel.Render(msg.Sender.DisplayName())
		bubble = m.theme.UserBubble
	}
	header := label + " " + m.theme.Timestamp.Render(msg.Timestamp)

	text := msg.Text
	switch {
	case live && msg.IsEmpty():
		text = m.spinner.View() + " " + m.theme.Waiting.Render("thinking")
	case live:
		text += " " + m.spinner.View()
	case msg.IsAgent() && m.useMD && !msg.IsEmpty():
		text = m.markdown.Render(msg.ID, msg.Text, width-4)
	}

	// Width covers padding; the border adds two more columns.
	block := header + "\n" + bubble.Width(width-2).Render(text)
	if msg.IsUser() {
		return lipgloss.PlaceHorizontal(m.viewport.Width, lipgloss.Right, block)
	}
	return block
}

// =============================================================================
// STATUS & INPUT
// =============================================================================

func (m Model) renderStatus() string {
	switch {
	case m.errLine != "":
		return m.theme.ErrorLine.Render("! " + m.errLine)
	case m.loading:
		return m.spinner.View() + " " + m.theme.Waiting.Render(PlaceholderWaiting)
	case m.notice != "":
		return m.theme.Notice.Render(m.notice)
	default:
		return ""
	}
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}
