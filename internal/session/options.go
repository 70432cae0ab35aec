// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"net/http"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/stream"
)

// DefaultFailureMessage replaces the placeholder text of a failed session.
const DefaultFailureMessage = "Sorry, something went wrong. Please try again."

// DefaultStoppedMessage replaces an empty placeholder when the caller
// cancels the send before any text arrived.
const DefaultStoppedMessage = "Response stopped."

// Options are captured by a session when it is sent. Changing them with
// Coordinator.SetOptions affects later sends only.
type Options struct {
	URL     string
	Method  string
	Headers map[string]string
	Mode    stream.Mode
	Model   string

	// ThreadIDPrefix is prepended to the conversation id to form threadId.
	ThreadIDPrefix string

	// IncludeHistory sends prior messages of the conversation before the
	// new user message. Off sends only the new message.
	IncludeHistory bool

	Generation     backend.Generation
	FailureMessage string
	StoppedMessage string
}

// DefaultOptions returns the session defaults.
func DefaultOptions() Options {
	return Options{
		URL:            "http://127.0.0.1:8787/api/chat",
		Method:         http.MethodPost,
		Mode:           stream.ModeRaw,
		FailureMessage: DefaultFailureMessage,
		StoppedMessage: DefaultStoppedMessage,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Method == "" {
		o.Method = d.Method
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.FailureMessage == "" {
		o.FailureMessage = d.FailureMessage
	}
	if o.StoppedMessage == "" {
		o.StoppedMessage = d.StoppedMessage
	}
	if len(o.Headers) > 0 {
		headers := make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		o.Headers = headers
	}
	return o
}
