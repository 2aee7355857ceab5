package wire

import (
	"encoding/json"
	"fmt"
)

// frame is the named-event envelope every socket message travels in.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeError reports a malformed inbound frame. It is logged and the
// frame dropped at the boundary; it never tears down the connection.
type DecodeError struct {
	Event  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %q: %s: %v", e.Event, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %q: %s", e.Event, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Event is a decoded inbound server event.
type Event interface {
	// Name returns the wire event name.
	Name() string
}

// NewMessage carries a message pushed by the peer.
type NewMessage struct {
	Message Message `json:"message"`
}

// MessageSent is the server echo confirming acceptance of a locally-sent
// message, carrying its server-assigned id.
type MessageSent struct {
	Message Message `json:"message"`
}

// ConversationHistory is a full snapshot of one conversation's messages.
type ConversationHistory struct {
	PeerID   string    `json:"peer_id"`
	Messages []Message `json:"messages"`
}

// ConversationsList is a snapshot of all conversation summaries.
type ConversationsList struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// UnreadCount is the server's total unread tally.
type UnreadCount struct {
	Count int `json:"count"`
}

// MessagesRead reports that ReadBy has read our messages to them.
type MessagesRead struct {
	ReadBy string    `json:"read_by"`
	ReadAt Timestamp `json:"read_at"`
}

// UserTyping reports the peer started typing.
type UserTyping struct {
	UserID   string `json:"user_id"`
	UserName string `json:"name"`
}

// UserStoppedTyping reports the peer stopped typing.
type UserStoppedTyping struct {
	UserID string `json:"user_id"`
}

// UserPresenceChanged reports an online/offline status change.
type UserPresenceChanged struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// ServerError is a server-side failure notification.
type ServerError struct {
	Message string `json:"message"`
}

func (NewMessage) Name() string          { return "new_message" }
func (MessageSent) Name() string         { return "message_sent" }
func (ConversationHistory) Name() string { return "conversation_history" }
func (ConversationsList) Name() string   { return "conversations_list" }
func (UnreadCount) Name() string         { return "unread_count" }
func (MessagesRead) Name() string        { return "messages_read" }
func (UserTyping) Name() string          { return "user_typing" }
func (UserStoppedTyping) Name() string   { return "user_stopped_typing" }
func (UserPresenceChanged) Name() string { return "user_presence_changed" }
func (ServerError) Name() string         { return "error" }

// Decode parses a raw socket frame into a typed event. A malformed frame
// yields a *DecodeError; the caller drops the single frame and carries on.
func Decode(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &DecodeError{Reason: "malformed frame", Err: err}
	}
	if f.Event == "" {
		return nil, &DecodeError{Reason: "missing event name"}
	}

	switch f.Event {
	case "new_message":
		var evt NewMessage
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if err := validateMessage(f.Event, &evt.Message); err != nil {
			return nil, err
		}
		return evt, nil
	case "message_sent":
		var evt MessageSent
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if err := validateMessage(f.Event, &evt.Message); err != nil {
			return nil, err
		}
		return evt, nil
	case "conversation_history":
		var evt ConversationHistory
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if evt.PeerID == "" {
			return nil, &DecodeError{Event: f.Event, Reason: "missing peer_id"}
		}
		for i := range evt.Messages {
			if err := validateMessage(f.Event, &evt.Messages[i]); err != nil {
				return nil, err
			}
		}
		return evt, nil
	case "conversations_list":
		var evt ConversationsList
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		for _, c := range evt.Conversations {
			if c.PeerID == "" {
				return nil, &DecodeError{Event: f.Event, Reason: "summary missing peer_id"}
			}
		}
		return evt, nil
	case "unread_count":
		var evt UnreadCount
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case "messages_read":
		var evt MessagesRead
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if evt.ReadBy == "" {
			return nil, &DecodeError{Event: f.Event, Reason: "missing read_by"}
		}
		return evt, nil
	case "user_typing":
		var evt UserTyping
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if evt.UserID == "" {
			return nil, &DecodeError{Event: f.Event, Reason: "missing user_id"}
		}
		return evt, nil
	case "user_stopped_typing":
		var evt UserStoppedTyping
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if evt.UserID == "" {
			return nil, &DecodeError{Event: f.Event, Reason: "missing user_id"}
		}
		return evt, nil
	case "user_presence_changed":
		var evt UserPresenceChanged
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		if evt.UserID == "" {
			return nil, &DecodeError{Event: f.Event, Reason: "missing user_id"}
		}
		return evt, nil
	case "error":
		var evt ServerError
		if err := unmarshalData(f, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	default:
		return nil, &DecodeError{Event: f.Event, Reason: "unknown event"}
	}
}

func unmarshalData(f frame, dst any) error {
	if len(f.Data) == 0 {
		return &DecodeError{Event: f.Event, Reason: "missing data"}
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return &DecodeError{Event: f.Event, Reason: "malformed data", Err: err}
	}
	return nil
}

func validateMessage(event string, m *Message) error {
	switch {
	case m.ID == "":
		return &DecodeError{Event: event, Reason: "message missing id"}
	case m.SenderID == "":
		return &DecodeError{Event: event, Reason: "message missing sender_id"}
	case m.RecipientID == "":
		return &DecodeError{Event: event, Reason: "message missing recipient_id"}
	}
	return nil
}
