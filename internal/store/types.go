package store

import "github.com/fitpulse/fitchat/internal/wire"

// Message is a message record owned by the store. Immutable once created
// except IsRead and ReadAt.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   wire.Timestamp
	ReplyToID   string
	IsRead      bool
	ReadAt      wire.Timestamp

	// seq is the arrival order, used to break created-at ties.
	seq int64
}

// FromWire converts a wire message into a store record.
func FromWire(m wire.Message) Message {
	return Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		ReplyToID:   m.ReplyToID,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
	}
}

// Conversation is a read-only snapshot of one conversation, keyed by the
// other participant's user id.
type Conversation struct {
	PeerID        string
	PeerName      string
	Presence      string
	Messages      []Message
	UnreadCount   int
	LastMessage   *Message
	LastMessageAt wire.Timestamp
}

// Summary is the lightweight list-view projection of a Conversation.
// Always derived, never independently authoritative.
type Summary struct {
	PeerID        string
	PeerName      string
	Presence      string
	UnreadCount   int
	LastMessage   *Message
	LastMessageAt wire.Timestamp
}

// ConversationRef is the bus payload identifying a changed conversation.
type ConversationRef struct {
	PeerID string
}

// TypingRef is the bus payload for typing indicator changes.
type TypingRef struct {
	PeerID string
	Name   string
	Typing bool
}
