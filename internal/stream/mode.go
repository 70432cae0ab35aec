// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"strings"
)

// Mode selects how a response body is split into fragments.
type Mode string

const (
	ModeRaw    Mode = "raw"
	ModeTagged Mode = "tagged"
	ModeNDJSON Mode = "ndjson"
)

// TextFramePrefix marks a tagged record whose payload is a text fragment.
const TextFramePrefix = "0:"

// Modes lists every supported mode.
func Modes() []Mode {
	return []Mode{ModeRaw, ModeTagged, ModeNDJSON}
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Modes() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown frame mode %q (want raw, tagged, or ndjson)", name)
}

// IsLineOriented reports whether records are delimited by newlines.
func (m Mode) IsLineOriented() bool {
	return m == ModeTagged || m == ModeNDJSON
}
