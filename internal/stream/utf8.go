// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf8Carry decodes byte buffers to text, holding back an incomplete
// trailing sequence until the next buffer completes it. Invalid bytes become
// U+FFFD.
type utf8Carry struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newUTF8Carry() *utf8Carry {
	return &utf8Carry{t: unicode.UTF8.NewDecoder()}
}

// decode converts p, prefixed with any carried bytes. With atEOF the carried
// bytes are flushed even if incomplete.
func (c *utf8Carry) decode(p []byte, atEOF bool) string {
	src := make([]byte, 0, len(c.pending)+len(p))
	src = append(src, c.pending...)
	src = append(src, p...)
	c.pending = c.pending[:0]

	// Replacement runes are three bytes, so invalid input can triple in size.
	if need := 3*len(src) + utf8.UTFMax; cap(c.dst) < need {
		c.dst = make([]byte, need)
	}

	var out []byte
	for {
		nDst, nSrc, err := c.t.Transform(c.dst[:cap(c.dst)], src, atEOF)
		out = append(out, c.dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) && nSrc > 0 {
			continue
		}
		if errors.Is(err, transform.ErrShortDst) {
			c.dst = make([]byte, 2*cap(c.dst))
			continue
		}
		break
	}

	c.pending = append(c.pending, src...)
	return string(out)
}

// buffered returns the number of carried bytes.
func (c *utf8Carry) buffered() int {
	return len(c.pending)
}
