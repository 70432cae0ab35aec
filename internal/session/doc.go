// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs request/response cycles against the backend and
// reconciles their fragments into the conversation store.
//
// # Key Types
//
//   - Coordinator: the single gate for sends; at most one session is in
//     flight system-wide
//   - StreamSession: one cycle, Idle -> Requesting -> Streaming ->
//     Completed|Failed -> Idle
//   - Handle: returned by Send; Wait blocks until the session is Idle again
//
// # Usage
//
//	coord := session.NewCoordinator(session.Config{
//	    Store:     store,
//	    Transport: backend.NewMockTransport(backend.DefaultMockConfig()),
//	})
//	h, err := coord.Send(ctx, "weather in London")
//	if err != nil {
//	    return err // ErrSessionInFlight or ErrEmptyMessage
//	}
//	sess := h.Wait()
//
// A session captures the active conversation id when Send is called and
// writes only to that conversation. Switching conversations does not
// redirect it; deleting the conversation turns its remaining writes into
// dropped no-ops. Sessions are never retried.
package session
