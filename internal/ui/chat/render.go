// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

type renderedMessage struct {
	text string
	out  string
}

// markdownRenderer renders finished agent messages with glamour. Output is
// cached per message id and dropped when the wrap width changes.
type markdownRenderer struct {
	style string
	width int
	term  *glamour.TermRenderer
	cache map[string]renderedMessage
}

func newMarkdownRenderer(style string) *markdownRenderer {
	return &markdownRenderer{
		style: style,
		cache: make(map[string]renderedMessage),
	}
}

// Render returns text rendered for width columns, or text unchanged if
// glamour fails.
func (r *markdownRenderer) Render(id, text string, width int) string {
	if width < 10 {
		return text
	}
	if r.term == nil || width != r.width {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return text
		}
		r.term = term
		r.width = width
		clear(r.cache)
	}

	if hit, ok := r.cache[id]; ok && hit.text == text {
		return hit.out
	}
	out, err := r.term.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")
	r.cache[id] = renderedMessage{text: text, out: out}
	return out
}
