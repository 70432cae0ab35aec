// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/streamchat/internal/model"
)

// subscriberBufferSize is deep enough to absorb a burst of fragments while
// a renderer is busy.
const subscriberBufferSize = 256

// EventKind names the mutation an Event reports.
type EventKind int

const (
	EventCreated EventKind = iota
	EventSelected
	EventDeleted
	EventCleared
	EventMessagesAppended
	EventFragmentApplied
	EventMessageReplaced
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventSelected:
		return "selected"
	case EventDeleted:
		return "deleted"
	case EventCleared:
		return "cleared"
	case EventMessagesAppended:
		return "messages_appended"
	case EventFragmentApplied:
		return "fragment_applied"
	case EventMessageReplaced:
		return "message_replaced"
	default:
		return "unknown"
	}
}

// Event describes one store mutation. Subscribers read current state
// through Snapshot; Text carries the fragment or replacement text.
type Event struct {
	Kind           EventKind
	ConversationID model.ConversationID
	Active         model.ConversationID
	Text           string
	At             time.Time
}

// Broadcaster fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	logger      *slog.Logger

	// watchers tracks the goroutines tying subscriptions to their contexts.
	watchers sync.WaitGroup
}

type subscription struct {
	ch chan Event
	// done is closed by Unsubscribe so the context watcher exits early.
	done chan struct{}
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscription),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber. The channel is closed when ctx is
// cancelled or Unsubscribe is called.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.NewString()
	sub := &subscription{
		ch:   make(chan Event, subscriberBufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	b.watchers.Add(1)
	go func() {
		defer b.watchers.Done()
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-sub.done:
		}
	}()
	return sub.ch, subID
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if ok {
		delete(b.subscribers, subID)
		close(sub.ch)
		close(sub.done)
	}
	b.mu.Unlock()

	if ok {
		b.logger.Debug("subscriber removed", "sub_id", subID)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for subID, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("subscriber buffer full, event dropped",
				"sub_id", subID, "event", ev.Kind.String())
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
