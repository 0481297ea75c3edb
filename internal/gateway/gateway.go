// Package gateway defines the remote data source consumed by the sync
// engine, and an HTTP client for the reference gateway server.
package gateway

import (
	"context"
	"errors"

	"github.com/driftline/chatsync/internal/model"
)

// Sentinel errors mapped across the wire. Everything else surfaced by a
// Gateway is treated as a generic transport failure.
var (
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrSenderNotInConversation = errors.New("sender not in conversation and no identity supplied")
)

// Wire error codes used by the reference server and HTTP client.
const (
	CodeConversationNotFound    = "conversation_not_found"
	CodeMessageNotFound         = "message_not_found"
	CodeSenderNotInConversation = "sender_not_in_conversation"
)

// Gateway is the remote collaborator the engine synchronizes against.
// Every operation is independently latent and independently fallible;
// the engine never retries, it converts failures to local state.
type Gateway interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	CreateMessage(ctx context.Context, conversationID int64, req model.CreateMessageRequest) (model.Message, error)
	UpdateReaction(ctx context.Context, messageID string, reactionType model.ReactionType, newValue int) (model.ReactionCounts, error)
}

// CodeToError maps a wire error code back to its sentinel.
func CodeToError(code, message string) error {
	switch code {
	case CodeConversationNotFound:
		return ErrConversationNotFound
	case CodeMessageNotFound:
		return ErrMessageNotFound
	case CodeSenderNotInConversation:
		return ErrSenderNotInConversation
	}
	return errors.New(message)
}

// ErrorCode maps a sentinel to its wire error code, or "" for generic
// transport errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		return CodeConversationNotFound
	case errors.Is(err, ErrMessageNotFound):
		return CodeMessageNotFound
	case errors.Is(err, ErrSenderNotInConversation):
		return CodeSenderNotInConversation
	}
	return ""
}
