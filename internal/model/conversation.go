package model

// Participant is a member of a conversation. Immutable once created;
// a new participant may be appended when an unknown sender posts with
// explicit identity.
type Participant struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
}

// Conversation represents a conversation thread and its preview state.
// Conversations are never deleted during a session.
type Conversation struct {
	ID                 int64         `json:"id"`
	Participants       []Participant `json:"participants"`
	LastMessagePreview string        `json:"last_message_preview"`
	LastActivityTS     int64         `json:"last_activity_ts"`
}

// Participant returns the participant record for userID, if present.
func (c Conversation) Participant(userID int64) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	out.Participants = append([]Participant(nil), c.Participants...)
	return out
}

// FixtureData is the seed payload consumed by the reference gateway:
// a baseline set of conversations and their messages.
type FixtureData struct {
	Conversations []Conversation `json:"conversations"`
	Messages      []Message      `json:"messages"`
}
