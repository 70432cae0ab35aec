// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage owns conversation state for streamchat.
//
// ConversationStore maps conversation ids to conversations and tracks the
// active selection. Every mutation goes through a store method that holds
// the store lock for its whole duration, so concurrent appends never lose
// updates. Reads return snapshots.
//
// Invariants:
//   - the store always holds at least one conversation and has an active one
//   - ids are never reused; a deleted id stays deleted
//   - fragment appends and text replacements against a deleted conversation
//     are dropped, never resurrecting it
//
// Subscribers receive an Event after every mutation, in mutation order.
package storage
