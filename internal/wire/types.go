package wire

// Message is the wire shape of a chat message. ID is server-assigned and
// stable; IsRead/ReadAt are the only fields that mutate after creation.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	CreatedAt   Timestamp `json:"created_at"`
	ReplyToID   string    `json:"reply_to_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	ReadAt      Timestamp `json:"read_at,omitempty"`
}

// ConversationSummary is the wire shape of a conversation list entry,
// keyed by the other participant's user id.
type ConversationSummary struct {
	PeerID      string    `json:"peer_id"`
	PeerName    string    `json:"peer_name"`
	UnreadCount int       `json:"unread_count"`
	LastMessage *Message  `json:"last_message,omitempty"`
	LastSeenAt  Timestamp `json:"last_seen_at,omitempty"`
}
