// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/logging"
)

const defaultBufferSize = 4096

// =============================================================================
// STATS
// =============================================================================

// Stats counts what a decoder has seen so far.
type Stats struct {
	Bytes         int64
	Fragments     int
	DroppedFrames int // malformed records, each one a recovered decode error
	IgnoredFrames int // well-formed records that carry no text
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder yields text fragments from a response body. It is not safe for
// concurrent use and cannot be restarted once it returns an error.
type Decoder struct {
	r      io.Reader
	mode   Mode
	logger *slog.Logger

	buf   []byte
	carry *utf8Carry
	line  strings.Builder // unterminated record carried between reads

	pending []string
	err     error
	stats   Stats
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for dropped-frame warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// WithBufferSize sets the read buffer size.
func WithBufferSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.buf = make([]byte, n)
		}
	}
}

// NewDecoder creates a decoder reading r in the given mode. An unknown mode
// decodes as raw.
func NewDecoder(r io.Reader, mode Mode, opts ...Option) *Decoder {
	if _, err := ParseMode(string(mode)); err != nil {
		mode = ModeRaw
	}
	d := &Decoder{
		r:     r,
		mode:  mode,
		carry: newUTF8Carry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.buf == nil {
		d.buf = make([]byte, defaultBufferSize)
	}
	d.logger = logging.OrDefault(d.logger).With("component", "decoder", "mode", string(d.mode))
	return d
}

// Mode returns the decoding mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Stats returns a copy of the counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Next returns the next fragment. It returns io.EOF once the body is
// exhausted and every fragment has been delivered. A failing body yields a
// *chaterr.Error of KindStreamRead after the fragments read before it.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.pending) > 0 {
			fragment := d.pending[0]
			d.pending = d.pending[1:]
			return fragment, nil
		}
		if d.err != nil {
			return "", d.err
		}
		d.fill()
	}
}

// Process calls fn for every fragment until the stream ends. It returns nil
// at end of stream.
func (d *Decoder) Process(ctx context.Context, fn func(fragment string)) error {
	for {
		if err := ctx.Err(); err != nil {
			return chaterr.StreamRead(err)
		}
		fragment, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(fragment)
	}
}

// fill performs one read and queues the fragments it produces.
func (d *Decoder) fill() {
	n, err := d.r.Read(d.buf)
	if n > 0 {
		d.stats.Bytes += int64(n)
		d.feed(d.carry.decode(d.buf[:n], false))
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if d.carry.buffered() > 0 {
			d.feed(d.carry.decode(nil, true))
		}
		d.finish()
		if d.err == nil {
			d.err = io.EOF
		}
	default:
		d.logger.Warn("stream read failed", "error", err, "bytes", d.stats.Bytes)
		if d.err == nil {
			d.err = chaterr.StreamRead(err)
		}
	}
}

func (d *Decoder) feed(text string) {
	if text == "" || d.err != nil {
		return
	}
	if !d.mode.IsLineOriented() {
		d.push(text)
		return
	}

	d.line.WriteString(text)
	buffered := d.line.String()
	cut := strings.LastIndexByte(buffered, '\n')
	if cut < 0 {
		return
	}
	d.line.Reset()
	d.line.WriteString(buffered[cut+1:])

	for _, record := range strings.Split(buffered[:cut], "\n") {
		d.record(record)
		if d.err != nil {
			return
		}
	}
}

// finish processes an unterminated final record.
func (d *Decoder) finish() {
	if d.line.Len() == 0 {
		return
	}
	record := d.line.String()
	d.line.Reset()
	d.record(record)
}

func (d *Decoder) record(line string) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	switch d.mode {
	case ModeTagged:
		d.taggedRecord(line)
	case ModeNDJSON:
		d.ndjsonRecord(line)
	}
}

func (d *Decoder) taggedRecord(line string) {
	if !strings.HasPrefix(line, TextFramePrefix) {
		d.stats.IgnoredFrames++
		return
	}
	var text string
	if err := json.Unmarshal([]byte(line[len(TextFramePrefix):]), &text); err != nil {
		d.drop(line, err)
		return
	}
	d.push(text)
}

// ndjsonFrame covers both /api/chat and /api/generate records.
type ndjsonFrame struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (d *Decoder) ndjsonRecord(line string) {
	var frame ndjsonFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		d.drop(line, err)
		return
	}
	if frame.Error != "" {
		d.logger.Warn("backend reported error mid-stream", "error", frame.Error)
		d.err = chaterr.StreamRead(errors.New(frame.Error))
		return
	}
	text := frame.Response
	if frame.Message != nil {
		text = frame.Message.Content
	}
	if text == "" {
		d.stats.IgnoredFrames++
		return
	}
	d.push(text)
}

func (d *Decoder) push(fragment string) {
	if fragment == "" {
		return
	}
	d.stats.Fragments++
	d.pending = append(d.pending, fragment)
}

func (d *Decoder) drop(line string, cause error) {
	d.stats.DroppedFrames++
	d.logger.Warn("dropping malformed frame", "error", chaterr.Decode(line, cause))
}
