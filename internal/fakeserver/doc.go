// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fakeserver is a development backend that streams a canned reply
// in any supported frame format.
//
// Routes:
//   - POST /api/chat?format=raw|tagged|ndjson[&interval_ms=N][&fail_after=N]
//   - POST /api/fail (always 500 with a JSON error body)
//   - GET  /health
//
// fail_after cuts the connection after N chunks so clients see a
// mid-stream read error.
package fakeserver
