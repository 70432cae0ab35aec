// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION ID
// =============================================================================

// ConversationID identifies a conversation for its whole lifetime.
type ConversationID string

// NewConversationID returns a fresh random identifier.
func NewConversationID() ConversationID {
	return ConversationID(uuid.NewString())
}

// String returns the string form of the id.
func (id ConversationID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id ConversationID) IsZero() bool {
	return id == ""
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds one chat's title and ordered message history.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewConversation creates an empty conversation with a generated id.
func NewConversation(title string, now time.Time) *Conversation {
	return &Conversation{
		ID:        NewConversationID(),
		Title:     title,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand outside the store.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// LastMessage returns the most recent message and whether one exists.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the sidebar view of a conversation.
type Summary struct {
	ID           ConversationID
	Title        string
	MessageCount int
	CreatedAt    time.Time
	Active       bool
}

// Summarize builds the sidebar entry for c.
func (c *Conversation) Summarize(active bool) Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: c.MessageCount(),
		CreatedAt:    c.CreatedAt,
		Active:       active,
	}
}
