// Package sync implements the client-side state synchronization engine:
// an optimistic local view of conversations, messages and reaction
// counters kept consistent with a remote gateway.
package sync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
)

// ConversationRegistry owns the ordered conversation set and the
// currently selected conversation. The stored order is the gateway's;
// presentation ordering is left to the consumer.
type ConversationRegistry struct {
	gateway  gateway.Gateway
	logger   *logger.Logger
	timeline *MessageTimeline
	notify   *notifier

	mu            sync.RWMutex
	conversations []model.Conversation
	selected      int64
	loading       bool
	initialized   bool
}

// NewConversationRegistry creates a registry. The timeline is attached
// afterwards via AttachTimeline because the two reference each other.
func NewConversationRegistry(gw gateway.Gateway, log *logger.Logger, n *notifier) *ConversationRegistry {
	return &ConversationRegistry{
		gateway: gw,
		logger:  log.Component("conversations"),
		notify:  n,
	}
}

// AttachTimeline wires the timeline reloaded on selection.
func (r *ConversationRegistry) AttachTimeline(t *MessageTimeline) {
	r.timeline = t
}

// Initialize fetches the conversation set exactly once per session
// bootstrap. It fails soft: a gateway error is logged and leaves the
// set empty, it is never returned to the caller.
func (r *ConversationRegistry) Initialize(ctx context.Context) {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return
	}
	r.initialized = true
	r.loading = true
	r.mu.Unlock()
	r.notify.fire()

	conversations, err := r.gateway.ListConversations(ctx)

	r.mu.Lock()
	r.loading = false
	if err != nil {
		r.logger.Error("failed to load conversations", zap.Error(err))
	} else {
		r.conversations = conversations
	}
	r.mu.Unlock()
	r.notify.fire()
}

// Select sets the active conversation and triggers a timeline reload
// for it. Selecting an id with no matching conversation is permitted;
// the timeline simply loads an empty result.
func (r *ConversationRegistry) Select(ctx context.Context, conversationID int64) {
	r.mu.Lock()
	r.selected = conversationID
	r.mu.Unlock()
	r.notify.fire()

	r.timeline.Load(ctx, conversationID)
}

// RecordLastMessage overwrites the preview and activity timestamp of
// the matching conversation. Unknown ids are ignored.
func (r *ConversationRegistry) RecordLastMessage(conversationID int64, preview string, timestamp int64) {
	r.mu.Lock()
	updated := false
	for i := range r.conversations {
		if r.conversations[i].ID == conversationID {
			r.conversations[i].LastMessagePreview = preview
			r.conversations[i].LastActivityTS = timestamp
			updated = true
			break
		}
	}
	r.mu.Unlock()

	if updated {
		r.notify.fire()
	}
}

// Selected returns the active conversation id.
func (r *ConversationRegistry) Selected() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Conversations returns a copy of the conversation set in stored order.
func (r *ConversationRegistry) Conversations() []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		out = append(out, c.Clone())
	}
	return out
}

// Loading reports whether the initial conversation fetch is running.
func (r *ConversationRegistry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}
