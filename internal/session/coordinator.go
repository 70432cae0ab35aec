// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/streamchat/internal/backend"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/storage"
)

// Send rejections.
var (
	ErrSessionInFlight = errors.New("a response is still streaming")
	ErrEmptyMessage    = errors.New("message is empty")
)

// =============================================================================
// CONFIG
// =============================================================================

// Config wires a Coordinator.
type Config struct {
	// Store is required.
	Store *storage.ConversationStore
	// Transport is required.
	Transport backend.Transport
	Options   Options
	Observer  Observer
	Logger    *slog.Logger
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle tracks an accepted send.
type Handle struct {
	session *StreamSession
	done    chan struct{}
}

// Session returns the running session.
func (h *Handle) Session() *StreamSession { return h.session }

// Done is closed once the session is back to Idle.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the session is back to Idle and returns it.
func (h *Handle) Wait() *StreamSession {
	<-h.done
	return h.session
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator is the presentation boundary: conversation actions, send,
// and the loading/error state. It enforces at most one in-flight session.
type Coordinator struct {
	store    *storage.ConversationStore
	observer Observer
	logger   *slog.Logger

	inFlight atomic.Bool

	mu        sync.RWMutex
	opts      Options
	transport backend.Transport
	lastErr   string
	current   *Handle
}

// NewCoordinator creates a coordinator. It panics if Store or Transport is nil.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Store == nil || cfg.Transport == nil {
		panic("session: Coordinator needs a store and a transport")
	}
	return &Coordinator{
		store:     cfg.Store,
		transport: cfg.Transport,
		observer:  cfg.Observer,
		logger:    logging.OrDefault(cfg.Logger).With("component", "coordinator"),
		opts:      cfg.Options.withDefaults(),
	}
}

// Send starts a session for text against the active conversation. It
// returns ErrEmptyMessage for blank text and ErrSessionInFlight while
// another session runs; neither touches the store. ctx bounds the
// session's request and stream reads.
func (c *Coordinator) Send(ctx context.Context, text string) (*Handle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	// Claimed before anything that can block or yield.
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("send rejected, session in flight")
		return nil, ErrSessionInFlight
	}

	bound := c.store.Active()
	var history []model.Message
	c.mu.RLock()
	opts, transport := c.opts, c.transport
	c.mu.RUnlock()
	if opts.IncludeHistory {
		if conv, ok := c.store.Snapshot(bound); ok {
			history = conv.Messages
		}
	}

	if _, err := c.store.AppendPair(bound, text); err != nil {
		c.inFlight.Store(false)
		return nil, fmt.Errorf("send: %w", err)
	}

	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()

	sess := newStreamSession(c, transport, bound, text, history, opts)
	h := &Handle{session: sess, done: make(chan struct{})}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	logging.FromContext(ctx).Debug("session started",
		"session_id", sess.ID(), "conversation_id", bound, "mode", string(opts.Mode))

	go func() {
		defer close(h.done)
		sess.run(ctx, c.release)
	}()
	return h, nil
}

// release records the outcome and frees the in-flight slot.
func (c *Coordinator) release(sess *StreamSession) {
	c.mu.Lock()
	if sess.Outcome() == StateFailed && !sess.Stopped() {
		c.lastErr = sess.opts.FailureMessage
	}
	c.mu.Unlock()
	c.inFlight.Store(false)
}

// IsLoading reports whether a session is in flight.
func (c *Coordinator) IsLoading() bool {
	return c.inFlight.Load()
}

// LastError returns the failure text of the most recent failed session,
// or "" once a new send has been accepted. A stopped session is not an
// error.
func (c *Coordinator) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Current returns the handle of the most recent accepted send, or nil.
func (c *Coordinator) Current() *Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Options returns the options the next send will capture.
func (c *Coordinator) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// SetOptions replaces the options for subsequent sends.
func (c *Coordinator) SetOptions(opts Options) {
	c.Reconfigure(opts, nil)
}

// Reconfigure replaces the options and, when transport is non-nil, the
// transport for subsequent sends. Both change together, so a send sees
// either the old pair or the new one. A session in flight keeps what it
// captured.
func (c *Coordinator) Reconfigure(opts Options, transport backend.Transport) {
	c.mu.Lock()
	c.opts = opts.withDefaults()
	if transport != nil {
		c.transport = transport
	}
	c.mu.Unlock()
	c.logger.Info("session options updated",
		"url", opts.URL, "mode", string(opts.Mode), "transport_replaced", transport != nil)
}

// =============================================================================
// CONVERSATION ACTIONS
// =============================================================================

// NewConversation creates an empty conversation and selects it.
func (c *Coordinator) NewConversation() model.ConversationID {
	id := c.store.Create("")
	c.store.Select(id)
	return id
}

// SelectConversation makes id active. It does not affect an in-flight
// session.
func (c *Coordinator) SelectConversation(id model.ConversationID) bool {
	return c.store.Select(id)
}

// DeleteConversation removes id. A session bound to it keeps running and
// its writes are dropped.
func (c *Coordinator) DeleteConversation(id model.ConversationID) bool {
	return c.store.Delete(id)
}

// ClearConversation empties id. A session bound to it keeps writing into
// the empty list.
func (c *Coordinator) ClearConversation(id model.ConversationID) bool {
	return c.store.Clear(id)
}

// Active returns the active conversation id.
func (c *Coordinator) Active() model.ConversationID {
	return c.store.Active()
}

// Conversations lists conversation summaries in creation order.
func (c *Coordinator) Conversations() []model.Summary {
	return c.store.List()
}

// Snapshot returns a copy of conversation id.
func (c *Coordinator) Snapshot(id model.ConversationID) (model.Conversation, bool) {
	return c.store.Snapshot(id)
}

// ActiveSnapshot returns a copy of the active conversation.
func (c *Coordinator) ActiveSnapshot() model.Conversation {
	return c.store.ActiveSnapshot()
}

// Subscribe streams store events until ctx is cancelled.
func (c *Coordinator) Subscribe(ctx context.Context) (<-chan storage.Event, string) {
	return c.store.Subscribe(ctx)
}
