// Package service provides the in-memory chat store backing the
// reference gateway server.
package service

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/gateway"
	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
	"github.com/driftline/chatsync/pkg/metrics"
)

// Options tunes the store's simulated network behavior. The reaction
// failure rate exists to exercise client-side rollback and must stay
// available as a fault-injection hook for testing.
type Options struct {
	// Latency is applied to every operation before it executes.
	Latency time.Duration
	// ReactionFailureRate is the probability in [0,1] that an
	// UpdateReaction call fails with a transport error.
	ReactionFailureRate float64
	// Rand overrides the random source used by fault injection.
	Rand func() float64
	// Now overrides the timestamp source for created messages.
	Now func() time.Time
}

// ChatService owns the conversation and message state served by the
// reference gateway. It satisfies gateway.Gateway so it can also be
// embedded in-process.
type ChatService struct {
	logger *logger.Logger
	opts   Options

	mu            sync.RWMutex
	conversations map[int64]*model.Conversation
	order         []int64
	messages      []model.Message
}

// New creates a chat service.
func New(log *logger.Logger, opts Options) *ChatService {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ChatService{
		logger:        log,
		opts:          opts,
		conversations: make(map[int64]*model.Conversation),
	}
}

// Seed loads fixture data into the store, replacing current state.
func (s *ChatService) Seed(data model.FixtureData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[int64]*model.Conversation, len(data.Conversations))
	s.order = s.order[:0]
	for _, conv := range data.Conversations {
		c := conv.Clone()
		s.conversations[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	s.messages = append([]model.Message(nil), data.Messages...)

	s.logger.Info("fixture loaded",
		zap.Int("conversations", len(data.Conversations)),
		zap.Int("messages", len(data.Messages)),
	)
}

// ListConversations returns all conversations in seed order.
func (s *ChatService) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id].Clone())
	}
	return out, nil
}

// ListMessages returns the messages belonging to a conversation sorted
// ascending by timestamp.
func (s *ChatService) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// CreateMessage appends a message to a conversation. An unknown sender
// is auto-enrolled as a participant when the request carries explicit
// identity; otherwise the call fails and nothing is changed.
func (s *ChatService) CreateMessage(ctx context.Context, conversationID int64, req model.CreateMessageRequest) (model.Message, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists {
		return model.Message{}, gateway.ErrConversationNotFound
	}

	participant, found := conv.Participant(req.SenderID)
	if !found {
		if req.Sender == "" || req.AvatarRef == "" {
			return model.Message{}, gateway.ErrSenderNotInConversation
		}
		participant = model.Participant{
			UserID:      req.SenderID,
			DisplayName: req.Sender,
			AvatarRef:   req.AvatarRef,
		}
		conv.Participants = append(conv.Participants, participant)
		s.logger.Info("participant enrolled",
			zap.Int64("conversation_id", conversationID),
			zap.Int64("user_id", participant.UserID),
		)
	}

	kind := req.Kind
	if kind == "" {
		kind = model.KindText
	}

	msg := model.Message{
		ConversationID: conversationID,
		SenderID:       req.SenderID,
		Sender:         participant.DisplayName,
		AvatarRef:      participant.AvatarRef,
		Kind:           kind,
		Body:           req.Body,
		Timestamp:      s.opts.Now().UnixMilli(),
	}
	s.messages = append(s.messages, msg)

	conv.LastMessagePreview = req.Body
	conv.LastActivityTS = msg.Timestamp

	return msg, nil
}

// ErrInjectedFailure is returned by UpdateReaction when the
// fault-injection hook fires.
var ErrInjectedFailure = &transportError{"network error: failed to update reaction"}

type transportError struct{ msg string }

func (e *transportError) Error() string { return e.msg }

// UpdateReaction overwrites one reaction counter on a message and
// returns the full authoritative counter set.
func (s *ChatService) UpdateReaction(ctx context.Context, messageID string, reactionType model.ReactionType, newValue int) (model.ReactionCounts, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.ReactionCounts{}, err
	}

	conversationID, timestamp, err := model.ParseMessageID(messageID)
	if err != nil {
		return model.ReactionCounts{}, gateway.ErrMessageNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.Timestamp == timestamp {
			idx = i
			break
		}
	}
	if idx == -1 {
		return model.ReactionCounts{}, gateway.ErrMessageNotFound
	}

	if s.opts.ReactionFailureRate > 0 && s.opts.Rand() < s.opts.ReactionFailureRate {
		metrics.FaultInjectionsTotal.Inc()
		s.logger.Warn("injected reaction failure", zap.String("message_id", messageID))
		return model.ReactionCounts{}, ErrInjectedFailure
	}

	s.messages[idx].Reactions = s.messages[idx].Reactions.With(reactionType, newValue)
	return s.messages[idx].Reactions, nil
}

func (s *ChatService) simulateLatency(ctx context.Context) error {
	if s.opts.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.opts.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
