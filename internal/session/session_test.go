// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/stream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// pipeTransport hands the test the write end of every response body so
// fragment delivery can be stepped.
type pipeTransport struct {
	mu       sync.Mutex
	reqs     []*backend.Request
	writers  chan *io.PipeWriter
	watchCtx bool
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{writers: make(chan *io.PipeWriter, 4)}
}

func (p *pipeTransport) Do(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()

	pr, pw := io.Pipe()
	if p.watchCtx {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
	}
	p.writers <- pw
	return &backend.Response{StatusCode: http.StatusOK, Body: pr}, nil
}

func (p *pipeTransport) next(t *testing.T) *io.PipeWriter {
	t.Helper()
	select {
	case pw := <-p.writers:
		return pw
	case <-time.After(2 * time.Second):
		t.Fatal("transport was never called")
		return nil
	}
}

func (p *pipeTransport) requests() []*backend.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*backend.Request(nil), p.reqs...)
}

// cancelTransport is a pipeTransport whose bodies fail with the request
// context's error once it is cancelled, like an HTTP body does.
func cancelTransport() *pipeTransport {
	p := newPipeTransport()
	p.watchCtx = true
	return p
}

func staticTransport(status int, body string) backend.Transport {
	return backend.TransportFunc(func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
		return &backend.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, nil
	})
}

func newCoordinator(t *testing.T, tr backend.Transport, mode stream.Mode) (*Coordinator, *storage.ConversationStore) {
	t.Helper()
	store := storage.NewConversationStore(storage.DefaultOptions())
	opts := DefaultOptions()
	opts.Mode = mode
	return NewCoordinator(Config{Store: store, Transport: tr, Options: opts}), store
}

func write(t *testing.T, pw *io.PipeWriter, s string) {
	t.Helper()
	_, err := io.WriteString(pw, s)
	require.NoError(t, err)
}

func lastText(t *testing.T, store *storage.ConversationStore, id model.ConversationID) string {
	t.Helper()
	conv, ok := store.Snapshot(id)
	require.True(t, ok)
	last, ok := conv.LastMessage()
	require.True(t, ok)
	return last.Text
}

func waitForText(t *testing.T, store *storage.ConversationStore, id model.ConversationID, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conv, ok := store.Snapshot(id)
		if !ok {
			return false
		}
		last, ok := conv.LastMessage()
		return ok && last.Text == want
	}, 2*time.Second, 5*time.Millisecond)
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestSend_TaggedStreamExample(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeTagged)
	bound := c.Active()

	h, err := c.Send(context.Background(), "weather in London")
	require.NoError(t, err)
	assert.True(t, c.IsLoading())

	pw := tr.next(t)
	write(t, pw, "0:\"Hello\"\n")
	write(t, pw, "0:\" world\"\nignore:xyz\n")
	write(t, pw, "0:\"!\"\n")
	require.NoError(t, pw.Close())

	sess := h.Wait()
	assert.Equal(t, StateCompleted, sess.Outcome())
	assert.Equal(t, StateIdle, sess.State())
	assert.NoError(t, sess.Err())
	assert.False(t, c.IsLoading())
	assert.Empty(t, c.LastError())

	conv, _ := store.Snapshot(bound)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "weather in London", conv.Messages[0].Text)
	assert.Equal(t, model.SenderAgent, conv.Messages[1].Sender)
	assert.Equal(t, "Hello world!", conv.Messages[1].Text)
	assert.Equal(t, 3, sess.Stats().Applied)
	assert.Equal(t, 1, sess.Stats().Decoder.IgnoredFrames)
}

func TestSend_MalformedFrameSkipped(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeTagged)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "0:\"a\"\n0:not-json\n0:\"b\"\n")
	require.NoError(t, pw.Close())

	sess := h.Wait()
	assert.Equal(t, StateCompleted, sess.Outcome())
	assert.Equal(t, "ab", lastText(t, store, bound))
	assert.Equal(t, 1, sess.Stats().Decoder.DroppedFrames)
}

func TestSend_MockTransportRawStream(t *testing.T) {
	tr := backend.NewMockTransport(backend.MockConfig{Reply: backend.DefaultMockReply})
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "weather in London")
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, backend.DefaultMockReply+" ", lastText(t, store, bound))
}

func TestSend_RequestPayload(t *testing.T) {
	tr := newPipeTransport()
	c, _ := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()
	opts := c.Options()
	opts.ThreadIDPrefix = "thread-"
	opts.Headers = map[string]string{"Authorization": "Bearer x"}
	opts.Model = "demo"
	c.SetOptions(opts)

	h, err := c.Send(context.Background(), "first")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "reply")
	require.NoError(t, pw.Close())
	h.Wait()

	opts.IncludeHistory = true
	c.SetOptions(opts)
	h, err = c.Send(context.Background(), "second")
	require.NoError(t, err)
	require.NoError(t, tr.next(t).Close())
	h.Wait()

	reqs := tr.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "Bearer x", reqs[0].Headers["Authorization"])

	var first, second backend.ChatRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &first))
	require.NoError(t, json.Unmarshal(reqs[1].Body, &second))

	assert.Equal(t, "thread-"+bound.String(), first.ThreadID)
	assert.Equal(t, "demo", first.Model)
	assert.True(t, first.Stream)
	assert.Equal(t, []backend.ChatMessage{backend.NewUserMessage("first")}, first.Messages)
	assert.Equal(t, []backend.ChatMessage{
		backend.NewUserMessage("first"),
		backend.NewAssistantMessage("reply"),
		backend.NewUserMessage("second"),
	}, second.Messages)
}

// =============================================================================
// SEND GATE
// =============================================================================

func TestSend_SecondSendWhileInFlightIsRejected(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "two")
	assert.ErrorIs(t, err, ErrSessionInFlight)

	conv, _ := store.Snapshot(bound)
	assert.Len(t, conv.Messages, 2, "only one user/placeholder pair")

	require.NoError(t, tr.next(t).Close())
	h.Wait()
	assert.False(t, c.IsLoading())
}

func TestSend_ConcurrentSendsAcceptExactlyOne(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*Handle
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h, err := c.Send(context.Background(), "hi"); err == nil {
				mu.Lock()
				accepted = append(accepted, h)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1)
	conv, _ := store.Snapshot(bound)
	assert.Len(t, conv.Messages, 2)

	require.NoError(t, tr.next(t).Close())
	accepted[0].Wait()
}

func TestSend_BlankTextRejected(t *testing.T) {
	c, store := newCoordinator(t, newPipeTransport(), stream.ModeRaw)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Send(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.False(t, c.IsLoading())
	snap := store.ActiveSnapshot()
	assert.True(t, snap.IsEmpty())
}

// =============================================================================
// CONCURRENT EDITS
// =============================================================================

func TestSend_SwitchingConversationDoesNotRedirect(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "Hel")
	waitForText(t, store, bound, "Hel")

	other := c.NewConversation()
	require.Equal(t, other, c.Active())

	write(t, pw, "lo")
	require.NoError(t, pw.Close())
	sess := h.Wait()

	assert.Equal(t, bound, sess.Bound())
	assert.Equal(t, "Hello", lastText(t, store, bound))
	otherConv, _ := store.Snapshot(other)
	assert.True(t, otherConv.IsEmpty())
}

func TestSend_DeletingBoundConversationDropsFragments(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "partial")
	waitForText(t, store, bound, "partial")

	require.True(t, c.DeleteConversation(bound))
	write(t, pw, " more")
	write(t, pw, " and more")
	require.NoError(t, pw.Close())
	sess := h.Wait()

	assert.Equal(t, StateCompleted, sess.Outcome())
	assert.NoError(t, sess.Err())
	assert.False(t, store.Exists(bound), "conversation is not recreated")
	assert.Equal(t, 1, store.Len())
	snap := store.ActiveSnapshot()
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, 1, sess.Stats().Applied)
	assert.GreaterOrEqual(t, sess.Stats().Stale, 1)
	assert.False(t, c.IsLoading())
}

func TestSend_ClearMidStreamKeepsWriting(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "before")
	waitForText(t, store, bound, "before")

	require.True(t, c.ClearConversation(bound))
	write(t, pw, "after")
	require.NoError(t, pw.Close())
	h.Wait()

	conv, _ := store.Snapshot(bound)
	require.Len(t, conv.Messages, 1)
	assert.True(t, conv.Messages[0].IsAgent())
	assert.Equal(t, "after", conv.Messages[0].Text)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSend_ServerErrorReplacesPlaceholder(t *testing.T) {
	c, store := newCoordinator(t, staticTransport(http.StatusInternalServerError, `{"error":"boom"}`), stream.ModeTagged)
	bound := c.Active()

	h, err := c.Send(context.Background(), "weather in London")
	require.NoError(t, err)
	sess := h.Wait()

	assert.Equal(t, StateFailed, sess.Outcome())
	assert.True(t, chaterr.Is(sess.Err(), chaterr.KindNetwork))
	assert.Contains(t, sess.Err().Error(), "boom")
	assert.False(t, c.IsLoading())
	assert.Equal(t, DefaultFailureMessage, c.LastError())
	assert.Equal(t, DefaultFailureMessage, lastText(t, store, bound))
	assert.Zero(t, sess.Stats().Applied)
}

func TestSend_TransportErrorIsNetworkFailure(t *testing.T) {
	tr := backend.TransportFunc(func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
		return nil, errors.New("connection refused")
	})
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	sess := h.Wait()

	assert.Equal(t, StateFailed, sess.Outcome())
	assert.True(t, chaterr.Is(sess.Err(), chaterr.KindNetwork))
	assert.Equal(t, DefaultFailureMessage, lastText(t, store, bound))
}

func TestSend_ReadErrorMidStream(t *testing.T) {
	tr := newPipeTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "partial answer")
	waitForText(t, store, bound, "partial answer")
	pw.CloseWithError(errors.New("connection reset"))

	sess := h.Wait()
	assert.Equal(t, StateFailed, sess.Outcome())
	assert.True(t, chaterr.Is(sess.Err(), chaterr.KindStreamRead))
	assert.Equal(t, DefaultFailureMessage, lastText(t, store, bound))
	assert.Equal(t, DefaultFailureMessage, c.LastError())
}

func TestSend_LastErrorClearedOnNextSend(t *testing.T) {
	var calls int
	var mu sync.Mutex
	tr := backend.TransportFunc(func(ctx context.Context, req *backend.Request) (*backend.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return &backend.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader(""))}, nil
		}
		return &backend.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})
	c, _ := newCoordinator(t, tr, stream.ModeRaw)

	h, err := c.Send(context.Background(), "one")
	require.NoError(t, err)
	h.Wait()
	require.NotEmpty(t, c.LastError())

	h, err = c.Send(context.Background(), "two")
	require.NoError(t, err)
	assert.Empty(t, c.LastError(), "cleared as soon as the send is accepted")
	h.Wait()
	assert.Empty(t, c.LastError())
}

func TestSend_CustomFailureMessage(t *testing.T) {
	c, store := newCoordinator(t, staticTransport(http.StatusBadGateway, ""), stream.ModeRaw)
	opts := c.Options()
	opts.FailureMessage = "The agent is unavailable."
	c.SetOptions(opts)
	bound := c.Active()

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, "The agent is unavailable.", lastText(t, store, bound))
}

func TestSend_CancelBeforeTextShowsStoppedMessage(t *testing.T) {
	tr := cancelTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := c.Send(ctx, "hi")
	require.NoError(t, err)
	tr.next(t)
	cancel()
	sess := h.Wait()

	assert.Equal(t, StateFailed, sess.Outcome())
	assert.True(t, sess.Stopped())
	assert.ErrorIs(t, sess.Err(), context.Canceled)
	assert.Equal(t, DefaultStoppedMessage, lastText(t, store, bound))
	assert.Empty(t, c.LastError())
	assert.False(t, c.IsLoading())
}

func TestSend_CancelKeepsPartialText(t *testing.T) {
	tr := cancelTransport()
	c, store := newCoordinator(t, tr, stream.ModeRaw)
	bound := c.Active()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := c.Send(ctx, "hi")
	require.NoError(t, err)
	pw := tr.next(t)
	write(t, pw, "Cloudy with")
	waitForText(t, store, bound, "Cloudy with")
	cancel()
	sess := h.Wait()

	assert.True(t, sess.Stopped())
	assert.Equal(t, "Cloudy with", lastText(t, store, bound))
	assert.Empty(t, c.LastError())
}

func TestSend_FailureIsNotStopped(t *testing.T) {
	c, _ := newCoordinator(t, staticTransport(http.StatusInternalServerError, ""), stream.ModeRaw)
	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	sess := h.Wait()

	assert.False(t, sess.Stopped())
	assert.Equal(t, DefaultFailureMessage, c.LastError())
}

func TestReconfigure_InFlightSessionKeepsTransport(t *testing.T) {
	first := newPipeTransport()
	c, store := newCoordinator(t, first, stream.ModeRaw)
	bound := c.Active()

	h, err := c.Send(context.Background(), "one")
	require.NoError(t, err)
	pw := first.next(t)

	opts := c.Options()
	opts.Mode = stream.ModeTagged
	c.Reconfigure(opts, staticTransport(http.StatusOK, `0:"tagged reply"`+"\n"))

	// The running session still decodes raw bytes from its own transport.
	write(t, pw, `0:"raw"`)
	require.NoError(t, pw.Close())
	h.Wait()
	assert.Equal(t, `0:"raw"`, lastText(t, store, bound))

	h, err = c.Send(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, h.Wait().Outcome())
	assert.Equal(t, "tagged reply", lastText(t, store, bound))
	assert.Len(t, first.requests(), 1)
}

func TestSetOptions_KeepsTransport(t *testing.T) {
	c, store := newCoordinator(t, staticTransport(http.StatusOK, "same transport"), stream.ModeTagged)
	opts := c.Options()
	opts.Mode = stream.ModeRaw
	c.SetOptions(opts)

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	h.Wait()
	assert.Equal(t, "same transport", lastText(t, store, c.Active()))
}

// =============================================================================
// OBSERVER
// =============================================================================

func TestObserver_SeesEveryTransition(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  []State
		store = storage.NewConversationStore(storage.DefaultOptions())
	)
	c := NewCoordinator(Config{
		Store:     store,
		Transport: staticTransport(http.StatusOK, "hello"),
		Observer: func(tr Transition) {
			mu.Lock()
			seen = append(seen, tr.To)
			mu.Unlock()
		},
	})

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	h.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateRequesting, StateStreaming, StateCompleted, StateIdle}, seen)
}

func TestObserver_IdleAfterRelease(t *testing.T) {
	store := storage.NewConversationStore(storage.DefaultOptions())
	var c *Coordinator
	loadingAtIdle := true
	c = NewCoordinator(Config{
		Store:     store,
		Transport: staticTransport(http.StatusOK, "x"),
		Observer: func(tr Transition) {
			if tr.To == StateIdle {
				loadingAtIdle = c.IsLoading()
			}
		},
	})

	h, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	h.Wait()
	assert.False(t, loadingAtIdle)
}

func TestNewCoordinator_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewCoordinator(Config{}) })
}

func TestConversationActions(t *testing.T) {
	c, _ := newCoordinator(t, newPipeTransport(), stream.ModeRaw)
	first := c.Active()

	second := c.NewConversation()
	assert.Equal(t, second, c.Active())
	assert.Len(t, c.Conversations(), 2)

	assert.True(t, c.SelectConversation(first))
	assert.Equal(t, first, c.ActiveSnapshot().ID)

	assert.True(t, c.DeleteConversation(first))
	assert.Equal(t, second, c.Active())
	_, ok := c.Snapshot(first)
	assert.False(t, ok)
}
