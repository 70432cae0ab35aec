// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/streamchat/internal/util"
)

// DefaultTimestampLayout renders hours and minutes, e.g. "09:41".
const DefaultTimestampLayout = "15:04"

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAgent:
		return "Agent"
	default:
		return string(s)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// Text changes only while the message is the placeholder of an active
// stream. Timestamp is formatted once at creation and never rewritten.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message stamped with now, formatted with layout.
// An empty layout falls back to DefaultTimestampLayout.
func NewMessage(sender Sender, text string, now time.Time, layout string) Message {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: now.Format(layout),
		CreatedAt: now,
	}
}

// NewPlaceholder creates the empty agent message that a stream fills.
func NewPlaceholder(now time.Time, layout string) Message {
	return NewMessage(SenderAgent, "", now, layout)
}

// IsUser returns true for user messages.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// IsAgent returns true for agent messages.
func (m Message) IsAgent() bool {
	return m.Sender == SenderAgent
}

// IsEmpty returns true if the message has no visible text.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == ""
}

// Preview returns the first line of the text truncated to maxWidth columns.
func (m Message) Preview(maxWidth int) string {
	text := strings.TrimSpace(m.Text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return util.TruncateWidth(text, maxWidth)
}
