// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/stream"
)

// =============================================================================
// STATE
// =============================================================================

// State is a stream session state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition is one state change, delivered to an Observer.
type Transition struct {
	SessionID    string
	Conversation model.ConversationID
	From, To     State
	Err          error
}

// Observer receives every transition synchronously from the session's
// goroutine. It must not block.
type Observer func(Transition)

// Stats summarizes a finished session.
type Stats struct {
	Applied   int           // fragments written to the store
	Stale     int           // fragments dropped because the conversation was deleted
	Decoder   stream.Stats  // bytes read, frames dropped or ignored
	FirstByte time.Duration // request start to first fragment
	Duration  time.Duration
}

// =============================================================================
// STREAM SESSION
// =============================================================================

// StreamSession is one request/response cycle bound to a conversation.
type StreamSession struct {
	id        string
	bound     model.ConversationID
	userText  string
	history   []model.Message
	opts      Options
	store     *storage.ConversationStore
	transport backend.Transport
	observer  Observer
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	terminal State
	stopped  bool
	err      error
	stats    Stats
}

func newStreamSession(c *Coordinator, transport backend.Transport, bound model.ConversationID, userText string, history []model.Message, opts Options) *StreamSession {
	id := uuid.NewString()
	return &StreamSession{
		id:        id,
		bound:     bound,
		userText:  userText,
		history:   history,
		opts:      opts,
		store:     c.store,
		transport: transport,
		observer:  c.observer,
		logger:    c.logger.With("session_id", id, "conversation_id", bound),
	}
}

// ID returns the session id.
func (s *StreamSession) ID() string { return s.id }

// Bound returns the conversation captured at send time.
func (s *StreamSession) Bound() model.ConversationID { return s.bound }

// State returns the current state.
func (s *StreamSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns Completed or Failed once the session has finished, and
// Idle before that.
func (s *StreamSession) Outcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Stopped reports whether the session failed because its context was
// cancelled by the caller.
func (s *StreamSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Err returns the failure, or nil.
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a copy of the session statistics.
func (s *StreamSession) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// run drives the session to a terminal state. release is called before
// the final transition to Idle, whatever the outcome.
func (s *StreamSession) run(ctx context.Context, release func(*StreamSession)) {
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.stats.Duration = time.Since(start)
		s.mu.Unlock()
		s.logSummary()
		release(s)
		s.transition(StateIdle, nil)
	}()

	s.transition(StateRequesting, nil)

	req, err := s.buildRequest()
	if err != nil {
		s.fail(ctx, chaterr.Network("failed to build request", err))
		return
	}

	resp, err := s.transport.Do(ctx, req)
	if err != nil {
		if !errors.Is(err, chaterr.ErrNetwork) {
			err = chaterr.Network("request failed", err)
		}
		s.fail(ctx, err)
		return
	}
	defer resp.Body.Close()

	if !resp.OK() {
		msg := backend.ErrorMessage(resp)
		s.fail(ctx, chaterr.Network("backend returned "+resp.Status(), errors.New(msg)))
		return
	}

	s.transition(StateStreaming, nil)

	dec := stream.NewDecoder(resp.Body, s.opts.Mode, stream.WithLogger(s.logger))
	first := true
	err = dec.Process(ctx, func(fragment string) {
		if first {
			first = false
			s.mu.Lock()
			s.stats.FirstByte = time.Since(start)
			s.mu.Unlock()
		}
		s.apply(fragment)
	})

	s.mu.Lock()
	s.stats.Decoder = dec.Stats()
	s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, chaterr.ErrStreamRead) {
			err = chaterr.StreamRead(err)
		}
		s.fail(ctx, err)
		return
	}
	s.transition(StateCompleted, nil)
}

func (s *StreamSession) buildRequest() (*backend.Request, error) {
	messages := []backend.ChatMessage{backend.NewUserMessage(s.userText)}
	if s.opts.IncludeHistory {
		messages = append(backend.ChatMessages(s.history), messages...)
	}

	body, err := backend.ChatRequest{
		Messages:   messages,
		ThreadID:   s.opts.ThreadIDPrefix + s.bound.String(),
		Model:      s.opts.Model,
		Stream:     true,
		Generation: s.opts.Generation,
	}.Marshal()
	if err != nil {
		return nil, err
	}

	return &backend.Request{
		Method:  s.opts.Method,
		URL:     s.opts.URL,
		Headers: s.opts.Headers,
		Body:    body,
	}, nil
}

func (s *StreamSession) apply(fragment string) {
	res := s.store.AppendFragment(s.bound, fragment)

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Applied() {
		s.stats.Applied++
		return
	}
	if !errors.Is(res.Reason, chaterr.ErrStaleTarget) {
		s.logger.Warn("fragment not applied", "reason", res.Reason)
		return
	}
	if s.stats.Stale == 0 {
		s.logger.Debug("bound conversation gone, dropping fragments", "reason", res.Reason)
	}
	s.stats.Stale++
}

// fail replaces the placeholder text with the failure message. A deleted
// conversation makes this a no-op like any other write.
//
// When the caller cancelled ctx the session is stopped instead: text that
// already arrived is kept and an empty placeholder gets the stopped message.
func (s *StreamSession) fail(ctx context.Context, err error) {
	text := s.opts.FailureMessage
	if errors.Is(ctx.Err(), context.Canceled) {
		s.mu.Lock()
		s.stopped = true
		applied := s.stats.Applied
		s.mu.Unlock()
		if applied > 0 {
			s.transition(StateFailed, err)
			return
		}
		text = s.opts.StoppedMessage
	}

	res := s.store.ReplaceLastMessageText(s.bound, text)
	if !res.Applied() {
		s.logger.Debug("failure text dropped", "reason", res.Reason)
	}
	s.transition(StateFailed, err)
}

func (s *StreamSession) transition(to State, err error) {
	s.mu.Lock()
	from := s.state
	s.state = to
	if to == StateCompleted || to == StateFailed {
		s.terminal = to
	}
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()

	s.logger.Debug("session state", "from", from.String(), "to", to.String())
	if s.observer != nil {
		s.observer(Transition{SessionID: s.id, Conversation: s.bound, From: from, To: to, Err: err})
	}
}

func (s *StreamSession) logSummary() {
	s.mu.Lock()
	stats, terminal, err := s.stats, s.terminal, s.err
	s.mu.Unlock()

	attrs := []any{
		"state", terminal.String(),
		"fragments", stats.Applied,
		"stale_fragments", stats.Stale,
		"dropped_frames", stats.Decoder.DroppedFrames,
		"bytes", stats.Decoder.Bytes,
		"ttff", stats.FirstByte,
		"duration", stats.Duration,
	}
	if err != nil {
		s.logger.Warn("session failed", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("session completed", attrs...)
}
