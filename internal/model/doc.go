// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - ConversationID: opaque, never-reused conversation identifier
//   - Conversation: title, ordered messages, and creation time
//   - Message: sender, text, and a timestamp formatted once at creation
//   - Sender: user or agent
//
// Values of these types handed out by the storage package are snapshots.
// Mutating them never changes the store.
//
// # Usage
//
//	msg := model.NewMessage(model.SenderUser, "weather in London", time.Now(), "15:04")
//	conv := model.NewConversation("Chat 1", time.Now())
//	conv.Messages = append(conv.Messages, msg)
package model
