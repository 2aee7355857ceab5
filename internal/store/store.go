// Package store holds the authoritative in-memory model of all known
// conversations. Every mutation entry point is idempotent with respect to
// replays of the same event; derived views (unread counts, ordered
// message lists) are recomputed on read from the canonical sequences.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/wire"
	"go.uber.org/zap"
)

// Store owns all Conversation and Message records. All entry points may
// be called from any goroutine; a single mutex serializes mutation, which
// is the correctness boundary between socket push, REST results, and
// local user actions.
type Store struct {
	mu          sync.Mutex
	localUserID string
	convs       map[string]*conversation
	typing      map[string]typingEntry
	serverTotal int
	seq         int64

	bus    *bus.Bus
	logger *zap.Logger
}

// conversation is the mutable internal state for one peer.
type conversation struct {
	peerID   string
	peerName string
	presence string
	msgs     []*Message
	byID     map[string]*Message

	// Summary fields reported by the server before any messages are
	// loaded. Once the sequence is populated they are superseded by
	// derived values.
	summaryUnread int
	summaryLast   *Message
}

// New creates an empty store for the given local user.
func New(localUserID string, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		localUserID: localUserID,
		convs:       make(map[string]*conversation),
		typing:      make(map[string]typingEntry),
		bus:         b,
		logger:      logger,
	}
}

// LocalUserID returns the id the store was built for.
func (s *Store) LocalUserID() string { return s.localUserID }

// ApplyNewMessage inserts a message into its owning conversation if the
// id is not already present. Returns true if the message was inserted.
func (s *Store) ApplyNewMessage(m Message) bool {
	s.mu.Lock()
	peerID := s.peerOf(m)
	if peerID == "" {
		s.mu.Unlock()
		s.logger.Warn("message does not involve local user, dropped",
			zap.String("msg_id", m.ID),
			zap.String("sender_id", m.SenderID))
		return false
	}
	conv := s.ensure(peerID)
	if _, exists := conv.byID[m.ID]; exists {
		s.mu.Unlock()
		s.logger.Debug("duplicate message ignored", zap.String("msg_id", m.ID))
		return false
	}
	s.insert(conv, m)
	s.mu.Unlock()

	s.notifyConversation(peerID)
	return true
}

// ApplyConversationHistory replaces the message sequence for a peer with
// a snapshot, merging by id: read-state mutations already applied locally
// are preserved for messages also present in the incoming set. This is
// what keeps a slow history fetch from undoing a read receipt that
// arrived while it was in flight.
func (s *Store) ApplyConversationHistory(peerID string, msgs []Message) {
	s.mu.Lock()
	conv := s.ensure(peerID)
	old := conv.byID

	conv.msgs = conv.msgs[:0]
	conv.byID = make(map[string]*Message, len(msgs))
	for _, m := range msgs {
		if _, dup := conv.byID[m.ID]; dup {
			continue
		}
		if prev, ok := old[m.ID]; ok {
			if prev.IsRead && !m.IsRead {
				m.IsRead = true
			}
			if m.ReadAt.IsZero() {
				m.ReadAt = prev.ReadAt
			}
		}
		s.insert(conv, m)
	}
	s.mu.Unlock()

	s.notifyConversation(peerID)
}

// ApplyReadReceipt marks every unread message we sent to peerID as read.
// readAt is only set where it was previously unset.
func (s *Store) ApplyReadReceipt(peerID string, readAt wire.Timestamp) int {
	s.mu.Lock()
	conv, ok := s.convs[peerID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("read receipt for unknown conversation", zap.String("peer_id", peerID))
		return 0
	}
	updated := 0
	for _, m := range conv.msgs {
		if m.SenderID == s.localUserID && m.RecipientID == peerID && !m.IsRead {
			m.IsRead = true
			if m.ReadAt.IsZero() {
				m.ReadAt = readAt
			}
			updated++
		}
	}
	s.mu.Unlock()

	if updated > 0 {
		s.notifyConversation(peerID)
	}
	return updated
}

// MarkConversationRead marks every inbound message from peerID as read.
// Called when the local user opens the conversation; the server is told
// separately via mark_messages_read.
func (s *Store) MarkConversationRead(peerID string, readAt wire.Timestamp) int {
	s.mu.Lock()
	conv, ok := s.convs[peerID]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	updated := 0
	for _, m := range conv.msgs {
		if m.RecipientID == s.localUserID && !m.IsRead {
			m.IsRead = true
			if m.ReadAt.IsZero() {
				m.ReadAt = readAt
			}
			updated++
		}
	}
	// The server-reported badge is stale once we read locally.
	conv.summaryUnread = 0
	s.mu.Unlock()

	if updated > 0 {
		s.notifyConversation(peerID)
	}
	return updated
}

// ApplyConversationsList upserts summary projections without discarding
// already-loaded message sequences.
func (s *Store) ApplyConversationsList(summaries []wire.ConversationSummary) {
	s.mu.Lock()
	changed := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		if sum.PeerID == "" {
			continue
		}
		conv := s.ensure(sum.PeerID)
		if sum.PeerName != "" {
			conv.peerName = sum.PeerName
		}
		conv.summaryUnread = sum.UnreadCount
		if sum.LastMessage != nil {
			last := FromWire(*sum.LastMessage)
			conv.summaryLast = &last
		}
		changed = append(changed, sum.PeerID)
	}
	s.mu.Unlock()

	for _, peerID := range changed {
		s.notifyConversation(peerID)
	}
}

// ApplyPresence records a peer's presence status.
func (s *Store) ApplyPresence(peerID, presence string) {
	s.mu.Lock()
	conv := s.ensure(peerID)
	if conv.presence == presence {
		s.mu.Unlock()
		return
	}
	conv.presence = presence
	s.mu.Unlock()

	s.notifyConversation(peerID)
}

// ApplyServerUnread records the server's total unread tally. Kept as a
// reconciliation diagnostic; TotalUnread stays derived from local state.
func (s *Store) ApplyServerUnread(count int) {
	s.mu.Lock()
	s.serverTotal = count
	s.mu.Unlock()
}

// Conversation returns a snapshot copy of one conversation.
func (s *Store) Conversation(peerID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[peerID]
	if !ok {
		return Conversation{}, false
	}
	snap := Conversation{
		PeerID:      conv.peerID,
		PeerName:    conv.peerName,
		Presence:    conv.presence,
		Messages:    make([]Message, len(conv.msgs)),
		UnreadCount: s.unreadLocked(conv),
	}
	for i, m := range conv.msgs {
		snap.Messages[i] = *m
	}
	if last := lastLocked(conv); last != nil {
		cp := *last
		snap.LastMessage = &cp
		snap.LastMessageAt = cp.CreatedAt
	}
	return snap, true
}

// Summaries returns list-view projections ordered by last message time
// descending.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	out := make([]Summary, 0, len(s.convs))
	for _, conv := range s.convs {
		sum := Summary{
			PeerID:      conv.peerID,
			PeerName:    conv.peerName,
			Presence:    conv.presence,
			UnreadCount: s.unreadLocked(conv),
		}
		if last := lastLocked(conv); last != nil {
			cp := *last
			sum.LastMessage = &cp
			sum.LastMessageAt = cp.CreatedAt
		}
		out = append(out, sum)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[j].LastMessageAt.Before(out[i].LastMessageAt)
	})
	return out
}

// TotalUnread returns the derived unread count across all conversations.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, conv := range s.convs {
		total += s.unreadLocked(conv)
	}
	return total
}

// ServerUnread returns the last total the server reported.
func (s *Store) ServerUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverTotal
}

// peerOf returns the other participant of a message, or "" when the
// message does not involve the local user at all.
func (s *Store) peerOf(m Message) string {
	switch s.localUserID {
	case m.RecipientID:
		return m.SenderID
	case m.SenderID:
		return m.RecipientID
	}
	return ""
}

// ensure returns the conversation for peerID, creating it on first
// reference. Caller holds the lock.
func (s *Store) ensure(peerID string) *conversation {
	conv, ok := s.convs[peerID]
	if !ok {
		conv = &conversation{
			peerID: peerID,
			byID:   make(map[string]*Message),
		}
		s.convs[peerID] = conv
	}
	return conv
}

// insert places m into the conversation keeping the sequence ordered by
// (created_at, arrival). Caller holds the lock and has checked for dups.
func (s *Store) insert(conv *conversation, m Message) {
	s.seq++
	m.seq = s.seq
	rec := &m

	i := len(conv.msgs)
	for i > 0 && conv.msgs[i-1].CreatedAt.Time.After(m.CreatedAt.Time) {
		i--
	}
	conv.msgs = append(conv.msgs, nil)
	copy(conv.msgs[i+1:], conv.msgs[i:])
	conv.msgs[i] = rec
	conv.byID[m.ID] = rec
}

func (s *Store) unreadLocked(conv *conversation) int {
	if len(conv.msgs) == 0 {
		return conv.summaryUnread
	}
	n := 0
	for _, m := range conv.msgs {
		if m.RecipientID == s.localUserID && !m.IsRead {
			n++
		}
	}
	return n
}

func lastLocked(conv *conversation) *Message {
	if len(conv.msgs) > 0 {
		return conv.msgs[len(conv.msgs)-1]
	}
	return conv.summaryLast
}

func (s *Store) notifyConversation(peerID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "store.conversation_updated",
		Timestamp: time.Now(),
		Payload:   ConversationRef{PeerID: peerID},
	})
}
