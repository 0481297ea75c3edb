// Package model defines data structures for the chat sync engine.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageKind represents the kind of message content.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindSystem MessageKind = "system"
)

// ReactionType identifies one of the supported reaction counters.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
)

// ReactionTypes lists all supported reaction types.
var ReactionTypes = []ReactionType{ReactionLike, ReactionLove, ReactionLaugh}

// ValidReactionType reports whether t is a supported reaction type.
func ValidReactionType(t ReactionType) bool {
	switch t {
	case ReactionLike, ReactionLove, ReactionLaugh:
		return true
	}
	return false
}

// ReactionCounts holds the per-type reaction counters for a message.
// It is a value type; mutations go through With so callers always work
// on copies.
type ReactionCounts struct {
	Like  int `json:"like"`
	Love  int `json:"love"`
	Laugh int `json:"laugh"`
}

// Get returns the counter for the given reaction type.
func (c ReactionCounts) Get(t ReactionType) int {
	switch t {
	case ReactionLike:
		return c.Like
	case ReactionLove:
		return c.Love
	case ReactionLaugh:
		return c.Laugh
	}
	return 0
}

// With returns a copy of c with the counter for t set to value.
func (c ReactionCounts) With(t ReactionType, value int) ReactionCounts {
	switch t {
	case ReactionLike:
		c.Like = value
	case ReactionLove:
		c.Love = value
	case ReactionLaugh:
		c.Laugh = value
	}
	return c
}

// Message represents a single chat message. Identity within a
// conversation is the (ConversationID, Timestamp) pair; timestamps are
// assumed monotonically increasing per send.
type Message struct {
	ConversationID int64          `json:"conversation_id"`
	SenderID       int64          `json:"sender_id"`
	Sender         string         `json:"sender"`
	AvatarRef      string         `json:"avatar_ref"`
	Kind           MessageKind    `json:"kind"`
	Body           string         `json:"body"`
	Reactions      ReactionCounts `json:"reactions"`
	Timestamp      int64          `json:"timestamp"`
}

// ID returns the derived message identity string.
func (m Message) ID() string {
	return MessageIDFor(m.ConversationID, m.Timestamp)
}

// MessageIDFor builds the canonical message identity string, the
// addressing key for reaction state and pending-op tracking.
func MessageIDFor(conversationID, timestamp int64) string {
	return fmt.Sprintf("%d-%d", conversationID, timestamp)
}

// ParseMessageID splits a message identity string back into its
// conversation id and timestamp.
func ParseMessageID(id string) (conversationID, timestamp int64, err error) {
	parts := strings.Split(id, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed message id %q", id)
	}
	conversationID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message id %q: %w", id, err)
	}
	timestamp, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message id %q: %w", id, err)
	}
	return conversationID, timestamp, nil
}

// CreateMessageRequest is the payload for the gateway's create-message
// operation. Sender and AvatarRef are optional; when the sender has no
// participant record they are required for auto-enrollment.
type CreateMessageRequest struct {
	SenderID  int64       `json:"sender_id"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	AvatarRef string      `json:"avatar_ref,omitempty"`
}

// UpdateReactionRequest is the payload for the gateway's
// reaction-update operation.
type UpdateReactionRequest struct {
	Type  ReactionType `json:"type"`
	Value int          `json:"value"`
}
