package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/store"
	"github.com/fitpulse/fitchat/internal/wire"
	"go.uber.org/zap"
)

// Writer persists dirty conversations from the in-memory store to the
// cache in the background. The store stays authoritative; the writer only
// trails it, so a crash loses at most one flush interval of cache
// freshness.
type Writer struct {
	db       *DB
	store    *store.Store
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// NewWriter creates a cache writer flushing at the given interval.
func NewWriter(db *DB, s *store.Store, logger *zap.Logger, interval time.Duration) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Writer{
		db:       db,
		store:    s,
		logger:   logger,
		interval: interval,
	}
}

// Start begins watching the store for dirty conversations.
func (w *Writer) Start(ctx context.Context, b *bus.Bus) {
	ctx, w.cancel = context.WithCancel(ctx)
	sub := b.Subscribe("store.conversation_updated", 256)

	go func() {
		defer sub.Cancel()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		dirty := make(map[string]bool)
		for {
			select {
			case evt := <-sub.C:
				if ref, ok := evt.Payload.(store.ConversationRef); ok {
					dirty[ref.PeerID] = true
				}
			case <-ticker.C:
				w.flush(dirty)
				dirty = make(map[string]bool)
			case <-ctx.Done():
				w.flush(dirty)
				return
			}
		}
	}()
}

// Stop stops the writer after a final flush.
func (w *Writer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Writer) flush(dirty map[string]bool) {
	flushed := 0
	for peerID := range dirty {
		snap, ok := w.store.Conversation(peerID)
		if !ok {
			continue
		}
		if err := w.persist(snap); err != nil {
			w.logger.Error("cache flush failed", zap.String("peer_id", peerID), zap.Error(err))
			continue
		}
		flushed++
	}
	if flushed > 0 {
		stamp := time.Now().UTC().Format(time.RFC3339)
		if err := w.db.SetCheckpoint(CheckpointLastFlush, stamp); err != nil {
			w.logger.Warn("checkpoint update failed", zap.Error(err))
		}
	}
}

// persist writes one conversation snapshot in a transaction.
func (w *Writer) persist(snap store.Conversation) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	preview := ""
	lastAt := ""
	if snap.LastMessage != nil {
		preview = truncate(snap.LastMessage.Content, 100)
		lastAt = tsString(snap.LastMessageAt)
	}
	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO conversations (peer_id, peer_name, presence, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			peer_name = excluded.peer_name,
			presence = excluded.presence,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		snap.PeerID, snap.PeerName, snap.Presence, snap.UnreadCount, lastAt, preview, now); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	for _, m := range snap.Messages {
		if _, err := tx.Exec(`
			INSERT INTO messages (peer_id, msg_id, sender_id, recipient_id, content, reply_to_id, is_read, read_at, created_at, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(peer_id, msg_id) DO UPDATE SET
				content = excluded.content,
				is_read = CASE WHEN excluded.is_read = 1 THEN 1 ELSE messages.is_read END,
				read_at = CASE WHEN messages.read_at = '' THEN excluded.read_at ELSE messages.read_at END`,
			snap.PeerID, m.ID, m.SenderID, m.RecipientID, m.Content, m.ReplyToID,
			boolToInt(m.IsRead), tsString(m.ReadAt), tsString(m.CreatedAt), now); err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Seed replays cached conversations and messages into an empty store for
// a warm start before the first sync.
func Seed(db *DB, s *store.Store, messagesPerConv int) error {
	convs, err := db.ListConversations(0)
	if err != nil {
		return fmt.Errorf("list cached conversations: %w", err)
	}

	summaries := make([]wire.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, c.Summary())
	}
	s.ApplyConversationsList(summaries)

	for _, c := range convs {
		msgs, err := db.ListMessages(c.PeerID, messagesPerConv)
		if err != nil {
			return fmt.Errorf("list cached messages for %s: %w", c.PeerID, err)
		}
		if len(msgs) == 0 {
			continue
		}
		records := make([]store.Message, len(msgs))
		for i, m := range msgs {
			records[i] = store.FromWire(m)
		}
		s.ApplyConversationHistory(c.PeerID, records)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
