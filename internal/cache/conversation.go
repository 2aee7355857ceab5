package cache

import (
	"database/sql"
	"time"

	"github.com/fitpulse/fitchat/internal/wire"
)

// Row shapes deliberately mirror the wire types so cached data can be
// replayed through the same store entry points as live snapshots.

// ConversationRow is a cached conversation header.
type ConversationRow struct {
	PeerID             string
	PeerName           string
	Presence           string
	UnreadCount        int
	LastMessageAt      string
	LastMessagePreview string
}

// UpsertConversation inserts or updates a conversation header.
func (db *DB) UpsertConversation(c *ConversationRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (peer_id, peer_name, presence, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			peer_name = excluded.peer_name,
			presence = excluded.presence,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.PeerID, c.PeerName, c.Presence, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// ListConversations returns cached conversation headers sorted by last
// message timestamp descending.
func (db *DB) ListConversations(limit int) ([]ConversationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT peer_id, peer_name, presence, unread_count, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []ConversationRow
	for rows.Next() {
		var c ConversationRow
		if err := rows.Scan(&c.PeerID, &c.PeerName, &c.Presence, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single cached conversation header, or nil.
func (db *DB) GetConversation(peerID string) (*ConversationRow, error) {
	var c ConversationRow
	err := db.QueryRow(`
		SELECT peer_id, peer_name, presence, unread_count, last_message_at, last_message_preview
		FROM conversations WHERE peer_id = ?`, peerID).
		Scan(&c.PeerID, &c.PeerName, &c.Presence, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Summary converts a cached header to its wire projection.
func (c *ConversationRow) Summary() wire.ConversationSummary {
	return wire.ConversationSummary{
		PeerID:      c.PeerID,
		PeerName:    c.PeerName,
		UnreadCount: c.UnreadCount,
	}
}
