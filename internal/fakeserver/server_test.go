// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fakeserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/stream"
)

const testReply = "Sunny and 21°C today."

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := New(Config{Reply: testReply, Interval: 0})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func chatBody(t *testing.T) []byte {
	t.Helper()
	body, err := backend.ChatRequest{
		Messages: []backend.ChatMessage{backend.NewUserMessage("weather?")},
		ThreadID: "t1",
		Stream:   true,
	}.Marshal()
	require.NoError(t, err)
	return body
}

func post(t *testing.T, url string, body []byte) *backend.Response {
	t.Helper()
	resp, err := backend.NewHTTPTransport(backend.DefaultHTTPConfig()).Do(context.Background(), &backend.Request{
		Method: http.MethodPost,
		URL:    url,
		Body:   body,
	})
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChat_AllFormats(t *testing.T) {
	srv := newTestServer(t)

	for _, mode := range stream.Modes() {
		t.Run(string(mode), func(t *testing.T) {
			resp := post(t, srv.URL+"/api/chat?format="+string(mode), chatBody(t))
			require.True(t, resp.OK())

			var sb strings.Builder
			err := stream.NewDecoder(resp.Body, mode).Process(context.Background(), func(f string) {
				sb.WriteString(f)
			})
			require.NoError(t, err)
			assert.Equal(t, testReply+" ", sb.String())
		})
	}
}

func TestChat_TaggedWireFormat(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/chat?format=tagged", chatBody(t))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `0:"Sunny "`, lines[0])
	assert.Equal(t, `d:{"finishReason":"stop"}`, lines[4])
}

func TestChat_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		url  string
		body []byte
	}{
		{"bad json", "/api/chat", []byte("{")},
		{"no messages", "/api/chat", []byte(`{"messages":[],"threadId":"x"}`)},
		{"bad format", "/api/chat?format=sse", chatBody(t)},
		{"bad interval", "/api/chat?interval_ms=-1", chatBody(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+tt.url, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, backend.ErrorMessage(resp))
		})
	}
}

func TestFail(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/fail", chatBody(t))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "simulated backend failure", backend.ErrorMessage(resp))
}

func TestChat_FailAfterCutsStream(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/api/chat?format=raw&fail_after=2", chatBody(t))
	require.True(t, resp.OK())

	var sb strings.Builder
	err := stream.NewDecoder(resp.Body, stream.ModeRaw).Process(context.Background(), func(f string) {
		sb.WriteString(f)
	})
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindStreamRead))
	assert.Equal(t, "Sunny and ", sb.String())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

// End to end: coordinator -> HTTP transport -> fake server -> decoder -> store.
func TestCoordinatorAgainstFakeServer(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		mode     stream.Mode
		want     string
		wantFail bool
	}{
		{"tagged", "/api/chat?format=tagged", stream.ModeTagged, testReply + " ", false},
		{"ndjson", "/api/chat?format=ndjson", stream.ModeNDJSON, testReply + " ", false},
		{"server error", "/api/fail", stream.ModeRaw, session.DefaultFailureMessage, true},
		{"cut stream", "/api/chat?fail_after=1", stream.ModeRaw, session.DefaultFailureMessage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewConversationStore(storage.DefaultOptions())
			opts := session.DefaultOptions()
			opts.URL = srv.URL + tt.path
			opts.Mode = tt.mode
			coord := session.NewCoordinator(session.Config{
				Store:     store,
				Transport: backend.NewHTTPTransport(backend.DefaultHTTPConfig()),
				Options:   opts,
			})

			h, err := coord.Send(context.Background(), "weather in London")
			require.NoError(t, err)
			sess := h.Wait()

			conv := coord.ActiveSnapshot()
			require.Len(t, conv.Messages, 2)
			assert.Equal(t, tt.want, conv.Messages[1].Text)
			assert.Equal(t, tt.wantFail, sess.Outcome() == session.StateFailed)
			assert.False(t, coord.IsLoading())
		})
	}
}
