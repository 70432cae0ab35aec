// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/stream"
)

// =============================================================================
// PAYLOAD TESTS
// =============================================================================

func TestChatRequest_Marshal(t *testing.T) {
	req := ChatRequest{
		Messages:   []ChatMessage{NewUserMessage("weather in London")},
		ThreadID:   "thread-1",
		Stream:     true,
		Generation: Generation{Temperature: 0.5},
	}

	body, err := req.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "thread-1", decoded["threadId"])
	assert.Equal(t, true, decoded["stream"])
	assert.Equal(t, 0.5, decoded["temperature"])
	assert.NotContains(t, decoded, "top_p")
	assert.NotContains(t, decoded, "model")

	msgs := decoded["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "weather in London"}, msgs[0])
}

func TestChatMessages_SkipsEmptyPlaceholder(t *testing.T) {
	now := time.Now()
	history := []model.Message{
		model.NewMessage(model.SenderUser, "hi", now, model.DefaultTimestampLayout),
		model.NewMessage(model.SenderAgent, "hello", now, model.DefaultTimestampLayout),
		model.NewMessage(model.SenderUser, "again", now, model.DefaultTimestampLayout),
		model.NewPlaceholder(now, model.DefaultTimestampLayout),
	}

	got := ChatMessages(history)
	assert.Equal(t, []ChatMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	}, got)
}

func TestEncodeFrame(t *testing.T) {
	assert.Equal(t, "Hello ", string(EncodeFrame(stream.ModeRaw, "Hello ")))
	assert.Equal(t, "0:\"say \\\"hi\\\"\"\n", string(EncodeFrame(stream.ModeTagged, `say "hi"`)))
	assert.JSONEq(t,
		`{"message":{"role":"assistant","content":"x"},"done":false}`,
		strings.TrimSpace(string(EncodeFrame(stream.ModeNDJSON, "x"))))
	assert.Nil(t, EncodeFinish(stream.ModeRaw))
}

// =============================================================================
// HTTP TRANSPORT TESTS
// =============================================================================

func TestHTTPTransport_StreamsBody(t *testing.T) {
	var gotBody, gotType, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Trace")

		flusher := w.(http.Flusher)
		for _, part := range []string{"0:\"Hel\"\n", "0:\"lo\"\n"} {
			_, _ = io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(DefaultHTTPConfig())
	resp, err := tr.Do(context.Background(), &Request{
		URL:     srv.URL + "/api/chat",
		Headers: map[string]string{"X-Trace": "abc"},
		Body:    []byte(`{"messages":[]}`),
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, resp.OK())
	var fragments []string
	dec := stream.NewDecoder(resp.Body, stream.ModeTagged)
	require.NoError(t, dec.Process(context.Background(), func(f string) {
		fragments = append(fragments, f)
	}))

	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, `{"messages":[]}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "abc", gotHeader)
}

func TestHTTPTransport_NonSuccessIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"model overloaded"}`)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(DefaultHTTPConfig()).Do(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.False(t, resp.OK())
	assert.Equal(t, "500 Internal Server Error", resp.Status())
	assert.Equal(t, "model overloaded", ErrorMessage(resp))
}

func TestErrorMessage_PlainBody(t *testing.T) {
	resp := &Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("upstream down"))}
	assert.Equal(t, "unexpected status: 502 Bad Gateway", ErrorMessage(resp))
}

func TestHTTPTransport_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(DefaultHTTPConfig()).Do(context.Background(), &Request{URL: url})
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindNetwork))
	assert.ErrorIs(t, err, chaterr.ErrNetwork)
}

func TestHTTPTransport_BadURL(t *testing.T) {
	_, err := NewHTTPTransport(DefaultHTTPConfig()).Do(context.Background(), &Request{URL: "://nope"})
	assert.True(t, chaterr.Is(err, chaterr.KindNetwork))
}

// =============================================================================
// MOCK TRANSPORT TESTS
// =============================================================================

func collect(t *testing.T, tr Transport, mode stream.Mode) (string, error) {
	t.Helper()
	resp, err := tr.Do(context.Background(), &Request{})
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb strings.Builder
	err = stream.NewDecoder(resp.Body, mode).Process(context.Background(), func(f string) {
		sb.WriteString(f)
	})
	return sb.String(), err
}

func TestMockTransport_AllModes(t *testing.T) {
	for _, mode := range stream.Modes() {
		t.Run(string(mode), func(t *testing.T) {
			tr := NewMockTransport(MockConfig{Reply: "Of course! It is 15°C.", Mode: mode})
			got, err := collect(t, tr, mode)
			require.NoError(t, err)
			assert.Equal(t, "Of course! It is 15°C. ", got)
		})
	}
}

func TestMockTransport_Paced(t *testing.T) {
	tr := NewMockTransport(MockConfig{Reply: "a b c", Interval: 20 * time.Millisecond})

	start := time.Now()
	got, err := collect(t, tr, stream.ModeRaw)
	require.NoError(t, err)

	assert.Equal(t, "a b c ", got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMockTransport_FailAfter(t *testing.T) {
	tr := NewMockTransport(MockConfig{Reply: "one two three", FailAfter: 2})

	got, err := collect(t, tr, stream.ModeRaw)
	assert.Equal(t, "one two ", got)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindStreamRead))
	assert.True(t, errors.Is(err, ErrMockFailure))
}

func TestMockTransport_ErrorStatus(t *testing.T) {
	tr := NewMockTransport(MockConfig{StatusCode: http.StatusInternalServerError})

	resp, err := tr.Do(context.Background(), &Request{})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "mock backend failure", ErrorMessage(resp))
}

func TestMockTransport_CancelStopsProducer(t *testing.T) {
	tr := NewMockTransport(MockConfig{Reply: "a b c d e f", Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	resp, err := tr.Do(ctx, &Request{})
	require.NoError(t, err)
	cancel()

	_, err = io.ReadAll(resp.Body)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransportFunc(t *testing.T) {
	called := false
	var tr Transport = TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return &Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	resp, err := tr.Do(context.Background(), &Request{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, resp.OK())
}
