// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeranaias/streamchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Chat roles on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message in the request payload.
type ChatMessage struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // Message text
}

// NewUserMessage creates a user chat message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant chat message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// Generation holds optional sampling parameters. Zero values are omitted.
type Generation struct {
	Temperature float64 `json:"temperature,omitempty"` // 0.0-2.0
	TopP        float64 `json:"top_p,omitempty"`       // 0.0-1.0
	MaxTokens   int     `json:"max_tokens,omitempty"`  // 0 means backend default
}

// ChatRequest is the request body sent to the chat endpoint.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	ThreadID string        `json:"threadId"`
	Model    string        `json:"model,omitempty"`
	Stream   bool          `json:"stream"`
	Generation
}

// Marshal encodes the request as JSON.
func (r ChatRequest) Marshal() ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	return body, nil
}

// ChatMessages converts a conversation history to wire messages. Empty
// agent messages (an unfilled placeholder) are skipped.
func ChatMessages(history []model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		switch {
		case m.IsUser():
			out = append(out, NewUserMessage(m.Text))
		case m.IsAgent() && !m.IsEmpty():
			out = append(out, NewAssistantMessage(m.Text))
		}
	}
	return out
}

// =============================================================================
// ERROR PAYLOAD
// =============================================================================

// ErrorPayload is the JSON error body returned with non-2xx statuses.
type ErrorPayload struct {
	Error string `json:"error"`
}

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4096

// ErrorMessage returns the error text of a failed response: the "error"
// field when the body is JSON, otherwise the status line.
func ErrorMessage(resp *Response) string {
	if resp == nil || resp.Body == nil {
		return "empty response"
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload ErrorPayload
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "unexpected status: " + resp.Status()
}
