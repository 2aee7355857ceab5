package cache

import (
	"encoding/json"
	"time"

	"github.com/fitpulse/fitchat/internal/wire"
)

// UpsertMessage inserts or updates a message (idempotent on
// peer_id + msg_id). A read mark is never un-set by a later unread copy,
// matching the store's merge rule.
func (db *DB) UpsertMessage(peerID string, m wire.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (peer_id, msg_id, sender_id, recipient_id, content, reply_to_id, is_read, read_at, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id, msg_id) DO UPDATE SET
			content = excluded.content,
			is_read = CASE WHEN excluded.is_read = 1 THEN 1 ELSE messages.is_read END,
			read_at = CASE WHEN messages.read_at = '' THEN excluded.read_at ELSE messages.read_at END`,
		peerID, m.ID, m.SenderID, m.RecipientID, m.Content, m.ReplyToID,
		boolToInt(m.IsRead), tsString(m.ReadAt), tsString(m.CreatedAt), now)
	return err
}

// ListMessages returns the most recent cached messages for a peer in
// ascending created-at order.
func (db *DB) ListMessages(peerID string, limit int) ([]wire.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT msg_id, sender_id, recipient_id, content, reply_to_id, is_read, read_at, created_at
		FROM messages
		WHERE peer_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, peerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []wire.Message
	for rows.Next() {
		var m wire.Message
		var isRead int
		var readAt, createdAt string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.ReplyToID, &isRead, &readAt, &createdAt); err != nil {
			return nil, err
		}
		m.IsRead = isRead != 0
		m.ReadAt = parseTS(readAt)
		m.CreatedAt = parseTS(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order for replay.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tsString(t wire.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	return t.String()
}

func parseTS(s string) wire.Timestamp {
	if s == "" {
		return wire.Timestamp{}
	}
	var t wire.Timestamp
	// The lenient unmarshaler already handles both parsed and opaque forms.
	raw, _ := json.Marshal(s)
	_ = t.UnmarshalJSON(raw)
	return t
}
