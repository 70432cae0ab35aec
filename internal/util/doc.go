// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across streamchat.
//
//   - TruncateRunes, TruncateWidth, StringWidth, PadRight: display-safe string
//     handling for titles and sidebar entries
//   - AtomicWriteFile: crash-safe file writing with fsync, used for config files
package util
