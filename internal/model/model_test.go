// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_FormatsTimestampOnce(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 41, 30, 0, time.UTC)

	msg := NewMessage(SenderUser, "hello", now, "")

	assert.Equal(t, "09:41", msg.Timestamp)
	assert.Equal(t, now, msg.CreatedAt)
	assert.NotEmpty(t, msg.ID)
	assert.True(t, msg.IsUser())
}

func TestNewPlaceholder(t *testing.T) {
	msg := NewPlaceholder(time.Now(), "15:04:05")

	assert.True(t, msg.IsAgent())
	assert.Equal(t, "", msg.Text)
	assert.True(t, msg.IsEmpty())
	assert.Len(t, msg.Timestamp, len("15:04:05"))
}

func TestSender_DisplayName(t *testing.T) {
	tests := []struct {
		sender Sender
		want   string
	}{
		{SenderUser, "You"},
		{SenderAgent, "Agent"},
		{Sender("other"), "other"},
	}

	for _, tc := range tests {
		t.Run(string(tc.sender), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sender.DisplayName())
		})
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := Message{Text: "  first line that is rather long\nsecond line"}

	assert.Equal(t, "first line that is rather long", msg.Preview(50))
	assert.Equal(t, "first l...", msg.Preview(10))
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation("Chat 1", time.Now())
	conv.Messages = append(conv.Messages, NewMessage(SenderUser, "hi", time.Now(), ""))

	snap := conv.Clone()
	snap.Messages[0].Text = "changed"
	snap.Messages = append(snap.Messages, NewPlaceholder(time.Now(), ""))

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hi", conv.Messages[0].Text)
}

func TestConversation_LastMessageAndSummary(t *testing.T) {
	conv := NewConversation("Chat 1", time.Now())

	_, ok := conv.LastMessage()
	assert.False(t, ok)

	conv.Messages = append(conv.Messages,
		NewMessage(SenderUser, "question", time.Now(), ""),
		NewPlaceholder(time.Now(), ""),
	)

	last, ok := conv.LastMessage()
	require.True(t, ok)
	assert.True(t, last.IsAgent())

	sum := conv.Summarize(true)
	assert.Equal(t, 2, sum.MessageCount)
	assert.Equal(t, "Chat 1", sum.Title)
	assert.True(t, sum.Active)
}

func TestConversationID_Unique(t *testing.T) {
	seen := make(map[ConversationID]bool)
	for i := 0; i < 100; i++ {
		id := NewConversationID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.True(t, ConversationID("").IsZero())
}
