// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/streamchat/internal/chaterr"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/model"
)

// ErrConversationNotFound is returned when an operation names an unknown id.
var ErrConversationNotFound = errors.New("conversation not found")

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a ConversationStore.
type Options struct {
	// DefaultTitle prefixes generated titles: "New Chat 1", "New Chat 2", ...
	DefaultTitle string
	// TimestampLayout formats message timestamps (default "15:04").
	TimestampLayout string
	// TitleMaxWidth bounds titles derived from the first user message.
	TitleMaxWidth int
	// Now is the clock; nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultOptions returns the store defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTitle:    "New Chat",
		TimestampLayout: model.DefaultTimestampLayout,
		TitleMaxWidth:   40,
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// Outcome tells whether a targeted mutation took effect.
type Outcome int

const (
	// Applied: the conversation existed and was updated.
	Applied Outcome = iota
	// Dropped: the conversation is gone; nothing changed.
	Dropped
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "dropped"
}

// Result reports the outcome of AppendFragment or ReplaceLastMessageText.
// Applied results carry the updated snapshot. Dropped results carry a
// KindStaleTarget reason.
type Result struct {
	Outcome      Outcome
	Reason       error
	Conversation model.Conversation
}

// Applied reports whether the mutation took effect.
func (r Result) Applied() bool {
	return r.Outcome == Applied
}

// Placeholder identifies the agent message created by AppendPair. The
// message is always addressed as "the current last message" at mutation
// time; MessageID is informational.
type Placeholder struct {
	ConversationID model.ConversationID
	MessageID      string
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

type entry struct {
	conv *model.Conversation
	// generatedTitle is true until the title is derived from a user message.
	generatedTitle bool
}

// ConversationStore is the single owner of conversation state. It is safe
// for concurrent use.
type ConversationStore struct {
	mu      sync.Mutex
	entries map[model.ConversationID]*entry
	order   []model.ConversationID // creation order
	active  model.ConversationID
	created int

	opts   Options
	events *Broadcaster
	logger *slog.Logger
}

// NewConversationStore creates a store holding one fresh, active conversation.
func NewConversationStore(opts Options) *ConversationStore {
	defaults := DefaultOptions()
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = defaults.DefaultTitle
	}
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = defaults.TimestampLayout
	}
	if opts.TitleMaxWidth <= 0 {
		opts.TitleMaxWidth = defaults.TitleMaxWidth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.OrDefault(opts.Logger).With("component", "store")

	s := &ConversationStore{
		entries: make(map[model.ConversationID]*entry),
		opts:    opts,
		events:  NewBroadcaster(logger),
		logger:  logger,
	}
	s.mu.Lock()
	s.active = s.createLocked("")
	s.mu.Unlock()
	return s
}

// Create inserts an empty conversation and returns its id. An empty title
// gets a generated one. The active selection does not change.
func (s *ConversationStore) Create(title string) model.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(title)
}

func (s *ConversationStore) createLocked(title string) model.ConversationID {
	s.created++
	e := &entry{}
	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("%s %d", s.opts.DefaultTitle, s.created)
		e.generatedTitle = true
	}
	e.conv = model.NewConversation(title, s.opts.Now())
	s.entries[e.conv.ID] = e
	s.order = append(s.order, e.conv.ID)

	s.logger.Debug("conversation created", "conversation_id", e.conv.ID)
	s.publishLocked(Event{Kind: EventCreated, ConversationID: e.conv.ID})
	return e.conv.ID
}

// Select makes id the active conversation. Unknown ids are ignored and
// reported with false.
func (s *ConversationStore) Select(id model.ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		s.logger.Debug("select ignored, unknown conversation", "conversation_id", id)
		return false
	}
	if s.active == id {
		return true
	}
	s.active = id
	s.publishLocked(Event{Kind: EventSelected, ConversationID: id})
	return true
}

// Delete removes id. If it was active, the most recently created remaining
// conversation becomes active; if none remain, a fresh one is created and
// selected. Returns false if id was unknown.
func (s *ConversationStore) Delete(id model.ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Debug("conversation deleted", "conversation_id", id)
	s.publishLocked(Event{Kind: EventDeleted, ConversationID: id})

	if s.active != id {
		return true
	}
	if len(s.order) == 0 {
		s.active = s.createLocked("")
	} else {
		s.active = s.order[len(s.order)-1]
	}
	s.publishLocked(Event{Kind: EventSelected, ConversationID: s.active})
	return true
}

// Clear empties the message list of id, leaving every other conversation
// alone. A stream bound to id keeps running and writes into the empty list.
func (s *ConversationStore) Clear(id model.ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.conv.Messages = make([]model.Message, 0)
	e.conv.UpdatedAt = s.opts.Now()
	s.publishLocked(Event{Kind: EventCleared, ConversationID: id})
	return true
}

// AppendPair appends the user's message and an empty agent placeholder to
// id, both stamped with the current time.
func (s *ConversationStore) AppendPair(id model.ConversationID, userText string) (Placeholder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Placeholder{}, fmt.Errorf("append to %s: %w", id, ErrConversationNotFound)
	}

	now := s.opts.Now()
	user := model.NewMessage(model.SenderUser, userText, now, s.opts.TimestampLayout)
	placeholder := model.NewPlaceholder(now, s.opts.TimestampLayout)
	e.conv.Messages = append(e.conv.Messages, user, placeholder)
	e.conv.UpdatedAt = now

	if e.generatedTitle {
		if title := user.Preview(s.opts.TitleMaxWidth); title != "" {
			e.conv.Title = title
			e.generatedTitle = false
		}
	}

	s.publishLocked(Event{Kind: EventMessagesAppended, ConversationID: id})
	return Placeholder{ConversationID: id, MessageID: placeholder.ID}, nil
}

// AppendFragment concatenates text onto the last message of id. If id no
// longer exists the call is dropped. If the list is empty (cleared
// mid-stream) or ends in a user message, a new agent message is started so
// user text is never rewritten.
func (s *ConversationStore) AppendFragment(id model.ConversationID, text string) Result {
	return s.mutateLast(id, EventFragmentApplied, text, func(m *model.Message) {
		m.Text += text
	})
}

// ReplaceLastMessageText sets the last message's text to text verbatim,
// with the same existence guard as AppendFragment.
func (s *ConversationStore) ReplaceLastMessageText(id model.ConversationID, text string) Result {
	return s.mutateLast(id, EventMessageReplaced, text, func(m *model.Message) {
		m.Text = text
	})
}

func (s *ConversationStore) mutateLast(id model.ConversationID, kind EventKind, text string, apply func(*model.Message)) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Result{Outcome: Dropped, Reason: chaterr.StaleTarget(id.String())}
	}

	msgs := e.conv.Messages
	if len(msgs) == 0 || !msgs[len(msgs)-1].IsAgent() {
		e.conv.Messages = append(e.conv.Messages, model.NewPlaceholder(s.opts.Now(), s.opts.TimestampLayout))
	}
	apply(&e.conv.Messages[len(e.conv.Messages)-1])
	e.conv.UpdatedAt = s.opts.Now()

	s.publishLocked(Event{Kind: kind, ConversationID: id, Text: text})
	return Result{Outcome: Applied, Conversation: e.conv.Clone()}
}

// =============================================================================
// READS
// =============================================================================

// Active returns the active conversation id. It is never empty.
func (s *ConversationStore) Active() model.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Exists reports whether id is present.
func (s *ConversationStore) Exists(id model.ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of conversation id.
func (s *ConversationStore) Snapshot(id model.ConversationID) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return model.Conversation{}, false
	}
	return e.conv.Clone(), true
}

// ActiveSnapshot returns a copy of the active conversation.
func (s *ConversationStore) ActiveSnapshot() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.active].conv.Clone()
}

// List returns summaries in creation order.
func (s *ConversationStore) List() []model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Summary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].conv.Summarize(id == s.active))
	}
	return out
}

// =============================================================================
// EVENTS
// =============================================================================

// Subscribe returns a channel receiving every subsequent Event. The
// subscription ends when ctx is cancelled.
func (s *ConversationStore) Subscribe(ctx context.Context) (<-chan Event, string) {
	return s.events.Subscribe(ctx)
}

// Unsubscribe ends a subscription early.
func (s *ConversationStore) Unsubscribe(subID string) {
	s.events.Unsubscribe(subID)
}

func (s *ConversationStore) publishLocked(ev Event) {
	ev.Active = s.active
	ev.At = s.opts.Now()
	s.events.Publish(ev)
}
