package wire

import (
	"encoding/json"
	"fmt"
)

// Command is an outbound client command, emitted as a named socket event.
// Commands are fire-and-forget; correctness comes from server echo events,
// not per-call acknowledgments.
type Command interface {
	// Name returns the wire event name the command is emitted under.
	Name() string
}

// SendMessage asks the server to deliver a message to RecipientID.
type SendMessage struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	ReplyToID   string `json:"reply_to_id,omitempty"`
}

// GetConversation requests a history snapshot for one conversation.
type GetConversation struct {
	PeerID string `json:"peer_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// MarkMessagesRead marks everything the peer sent us as read.
type MarkMessagesRead struct {
	PeerID string `json:"peer_id"`
}

// GetConversationsList requests the conversation list snapshot.
type GetConversationsList struct{}

// GetUnreadCount requests the server's total unread tally.
type GetUnreadCount struct{}

// TypingStart signals the local user started typing to PeerID.
type TypingStart struct {
	PeerID string `json:"peer_id"`
}

// TypingStop signals the local user stopped typing to PeerID.
type TypingStop struct {
	PeerID string `json:"peer_id"`
}

// SetOnline announces the local user's presence after (re)connecting.
type SetOnline struct{}

func (SendMessage) Name() string          { return "send_message" }
func (GetConversation) Name() string      { return "get_conversation" }
func (MarkMessagesRead) Name() string     { return "mark_messages_read" }
func (GetConversationsList) Name() string { return "get_conversations_list" }
func (GetUnreadCount) Name() string       { return "get_unread_count" }
func (TypingStart) Name() string          { return "typing_start" }
func (TypingStop) Name() string           { return "typing_stop" }
func (SetOnline) Name() string            { return "set_online" }

// Encode serializes a command into its socket frame.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %q payload: %w", cmd.Name(), err)
	}
	raw, err := json.Marshal(frame{Event: cmd.Name(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %q frame: %w", cmd.Name(), err)
	}
	return raw, nil
}
