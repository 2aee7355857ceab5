package store

import (
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
)

// typingEntry is the ephemeral typing indicator for one peer. Never
// persisted; wiped wholesale on disconnect.
type typingEntry struct {
	name    string
	expires time.Time
}

// SetTyping marks a peer as typing until expiry.
func (s *Store) SetTyping(peerID, name string, expires time.Time) {
	s.mu.Lock()
	s.typing[peerID] = typingEntry{name: name, expires: expires}
	s.mu.Unlock()

	s.notifyTyping(peerID, name, true)
}

// ClearTyping removes a peer's typing indicator.
func (s *Store) ClearTyping(peerID string) {
	s.mu.Lock()
	entry, ok := s.typing[peerID]
	if ok {
		delete(s.typing, peerID)
	}
	s.mu.Unlock()

	if ok {
		s.notifyTyping(peerID, entry.name, false)
	}
}

// ResetTyping wipes all typing state. Called on disconnect, since no
// stopped-typing events will arrive for indicators set before the drop.
func (s *Store) ResetTyping() {
	s.mu.Lock()
	cleared := make(map[string]string, len(s.typing))
	for peerID, entry := range s.typing {
		cleared[peerID] = entry.name
	}
	s.typing = make(map[string]typingEntry)
	s.mu.Unlock()

	for peerID, name := range cleared {
		s.notifyTyping(peerID, name, false)
	}
}

// Typing reports whether a peer is currently typing, honoring expiry.
func (s *Store) Typing(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.typing[peerID]
	if !ok {
		return false
	}
	return time.Now().Before(entry.expires)
}

func (s *Store) notifyTyping(peerID, name string, typing bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "store.typing_changed",
		Timestamp: time.Now(),
		Payload:   TypingRef{PeerID: peerID, Name: name, Typing: typing},
	})
}
