// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/chaterr"
)

// chunkReader returns one chunk per Read call, then err (io.EOF if nil).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var out []string
	for {
		fragment, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
}

// =============================================================================
// RAW MODE
// =============================================================================

func TestDecoder_RawPassesBuffersThrough(t *testing.T) {
	d := NewDecoder(newChunkReader("Of ", "course! ", "The weather "), ModeRaw)

	got, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"Of ", "course! ", "The weather "}, got)
	assert.Equal(t, 3, d.Stats().Fragments)
	assert.EqualValues(t, len("Of course! The weather "), d.Stats().Bytes)
}

func TestDecoder_RawCarriesSplitMultibyte(t *testing.T) {
	deg := []byte("15°C") // ° is two bytes
	r := &chunkReader{chunks: [][]byte{deg[:3], deg[3:]}}

	got, err := collect(t, NewDecoder(r, ModeRaw))

	require.NoError(t, err)
	assert.Equal(t, []string{"15", "°C"}, got)
	assert.Equal(t, "15°C", strings.Join(got, ""))
}

func TestDecoder_RawFlushesTruncatedSequenceAtEOF(t *testing.T) {
	euro := []byte("€") // three bytes
	r := &chunkReader{chunks: [][]byte{[]byte("a"), euro[:2]}}

	got, err := collect(t, NewDecoder(r, ModeRaw))

	require.NoError(t, err)
	assert.Equal(t, "a�", strings.Join(got, ""))
}

// =============================================================================
// TAGGED MODE
// =============================================================================

func TestDecoder_TaggedExample(t *testing.T) {
	body := "0:\"Hello\"\n0:\" world\"\nignore:xyz\n0:\"!\"\n"

	d := NewDecoder(newChunkReader(body), ModeTagged)
	got, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world", "!"}, got)
	assert.Equal(t, 1, d.Stats().IgnoredFrames)
	assert.Equal(t, 0, d.Stats().DroppedFrames)
}

func TestDecoder_TaggedConcatenationAcrossArbitraryBoundaries(t *testing.T) {
	body := "0:\"Of course! \"\n\n2:[{\"tool\":\"weather\"}]\n0:\"It is 15°C \"\r\n" +
		"0:\"in \\\"London\\\".\\n\"\nd:{\"finishReason\":\"stop\"}\n"
	want := "Of course! It is 15°C in \"London\".\n"

	raw := []byte(body)
	for size := 1; size <= len(raw); size++ {
		var chunks [][]byte
		for i := 0; i < len(raw); i += size {
			end := i + size
			if end > len(raw) {
				end = len(raw)
			}
			chunks = append(chunks, raw[i:end])
		}

		got, err := collect(t, NewDecoder(&chunkReader{chunks: chunks}, ModeTagged))
		require.NoError(t, err, "chunk size %d", size)
		assert.Equal(t, want, strings.Join(got, ""), "chunk size %d", size)
	}
}

func TestDecoder_TaggedSkipsMalformedAndContinues(t *testing.T) {
	d := NewDecoder(newChunkReader("0:\"a\"\n0:not-json\n0:42\n0:\"b\"\n"), ModeTagged)

	got, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, d.Stats().DroppedFrames)
}

func TestDecoder_TaggedProcessesUnterminatedFinalRecord(t *testing.T) {
	got, err := collect(t, NewDecoder(newChunkReader("0:\"one\"\n0:\"two\""), ModeTagged))

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)
}

// =============================================================================
// NDJSON MODE
// =============================================================================

func TestDecoder_NDJSON(t *testing.T) {
	body := `{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}` + "\n" +
		`{"response":"lo"}` + "\n" +
		`garbage` + "\n" +
		`{"message":{"role":"assistant","content":""},"done":true}` + "\n"

	d := NewDecoder(newChunkReader(body), ModeNDJSON)
	got, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, 1, d.Stats().DroppedFrames)
	assert.Equal(t, 1, d.Stats().IgnoredFrames)
}

func TestDecoder_NDJSONErrorFrameFailsStream(t *testing.T) {
	body := `{"response":"partial"}` + "\n" + `{"error":"model crashed"}` + "\n" + `{"response":"never"}` + "\n"

	got, err := collect(t, NewDecoder(newChunkReader(body), ModeNDJSON))

	assert.Equal(t, []string{"partial"}, got)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindStreamRead))
	assert.Contains(t, err.Error(), "model crashed")
}

// =============================================================================
// FAILURES
// =============================================================================

func TestDecoder_ReadErrorAfterFragments(t *testing.T) {
	r := newChunkReader("0:\"partial\"\n")
	r.err = errors.New("connection reset by peer")

	d := NewDecoder(r, ModeTagged)
	got, err := collect(t, d)

	assert.Equal(t, []string{"partial"}, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, chaterr.ErrStreamRead)
	assert.Contains(t, err.Error(), "connection reset by peer")

	// The error is sticky; the decoder does not retry.
	_, again := d.Next()
	assert.Equal(t, err, again)
}

func TestDecoder_Process(t *testing.T) {
	var got []string
	err := NewDecoder(newChunkReader("a", "b"), ModeRaw).Process(context.Background(), func(f string) {
		got = append(got, f)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDecoder_ProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDecoder(newChunkReader("a"), ModeRaw).Process(ctx, func(string) {
		t.Fatal("no fragment expected after cancellation")
	})

	assert.True(t, chaterr.Is(err, chaterr.KindStreamRead))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Tagged ")
	require.NoError(t, err)
	assert.Equal(t, ModeTagged, m)
	assert.True(t, m.IsLineOriented())
	assert.False(t, ModeRaw.IsLineOriented())

	_, err = ParseMode("sse")
	assert.Error(t, err)

	assert.Equal(t, ModeRaw, NewDecoder(strings.NewReader(""), Mode("bogus")).Mode())
}
