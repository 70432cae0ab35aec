// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the transport boundary to the streaming text service.
//
// A Transport sends one Request and returns the status code plus a body
// that is read incrementally. Two implementations are provided:
//
//   - HTTPTransport: net/http against a real or fake backend
//   - MockTransport: an in-process stream that paces a canned reply word
//     by word, encoded in any frame mode
//
// # Usage
//
//	t := backend.NewHTTPTransport(backend.DefaultHTTPConfig())
//	body, _ := backend.ChatRequest{
//	    Messages: []backend.ChatMessage{backend.NewUserMessage("hi")},
//	    ThreadID: "thread-1",
//	    Stream:   true,
//	}.Marshal()
//	resp, err := t.Do(ctx, &backend.Request{Method: "POST", URL: url, Body: body})
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
//
// The body is handed to stream.NewDecoder; this package never interprets
// frames.
package backend
