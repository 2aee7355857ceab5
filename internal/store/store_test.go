package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/wire"
)

func ts(minute int) wire.Timestamp {
	return wire.At(time.Date(2025, 3, 1, 10, minute, 0, 0, time.UTC))
}

func inbound(id string, minute int) Message {
	return Message{ID: id, SenderID: "u2", RecipientID: "me", Content: "in-" + id, CreatedAt: ts(minute)}
}

func outbound(id string, minute int) Message {
	return Message{ID: id, SenderID: "me", RecipientID: "u2", Content: "out-" + id, CreatedAt: ts(minute)}
}

// TestHistoryThenNewMessage starts from an empty store receiving a
// history snapshot with one unread inbound message.
func TestHistoryThenNewMessage(t *testing.T) {
	s := New("me", nil, nil)

	s.ApplyConversationHistory("u2", []Message{inbound("m1", 0)})

	conv, ok := s.Conversation("u2")
	if !ok {
		t.Fatal("conversation not created")
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ID != "m1" {
		t.Fatalf("messages = %+v, want [m1]", conv.Messages)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", conv.UnreadCount)
	}
	if s.TotalUnread() != 1 {
		t.Errorf("total unread = %d, want 1", s.TotalUnread())
	}
}

// TestReadReceiptDirection checks that a read receipt from the peer
// marks our outgoing message read and leaves their inbound one alone.
func TestReadReceiptDirection(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyConversationHistory("u2", []Message{inbound("m1", 0)})
	if !s.ApplyNewMessage(outbound("m2", 2)) {
		t.Fatal("outbound message not inserted")
	}

	readAt := ts(3)
	if n := s.ApplyReadReceipt("u2", readAt); n != 1 {
		t.Fatalf("ApplyReadReceipt updated %d messages, want 1", n)
	}

	conv, _ := s.Conversation("u2")
	m1, m2 := conv.Messages[0], conv.Messages[1]
	if m1.ID != "m1" || m2.ID != "m2" {
		t.Fatalf("order = %s,%s, want m1,m2", m1.ID, m2.ID)
	}
	if !m2.IsRead || !m2.ReadAt.Time.Equal(readAt.Time) {
		t.Errorf("m2 = read:%v at:%v, want read at %v", m2.IsRead, m2.ReadAt, readAt)
	}
	if m1.IsRead {
		t.Error("m1 (inbound) must be unaffected by the peer's receipt")
	}
}

func TestApplyNewMessageIdempotent(t *testing.T) {
	s := New("me", nil, nil)
	m := inbound("m1", 0)

	if !s.ApplyNewMessage(m) {
		t.Fatal("first apply should insert")
	}
	if s.ApplyNewMessage(m) {
		t.Error("second apply should be a no-op")
	}

	conv, _ := s.Conversation("u2")
	if len(conv.Messages) != 1 {
		t.Errorf("got %d messages, want 1 (dedup by id)", len(conv.Messages))
	}
}

// TestHistoryMergePreservesReadState: a history snapshot holding an
// unread copy of a message already marked read locally must not
// resurrect the unread state.
func TestHistoryMergePreservesReadState(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyNewMessage(outbound("m1", 0))
	s.ApplyReadReceipt("u2", ts(1))

	// Unread copy of m1, as a fetch started before the receipt would carry.
	s.ApplyConversationHistory("u2", []Message{outbound("m1", 0)})

	conv, _ := s.Conversation("u2")
	if len(conv.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(conv.Messages))
	}
	if !conv.Messages[0].IsRead {
		t.Error("merge must preserve isRead=true from the local record")
	}
	if conv.Messages[0].ReadAt.IsZero() {
		t.Error("merge must preserve readAt from the local record")
	}
}

func TestHistoryReplacesSequence(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyConversationHistory("u2", []Message{inbound("m1", 0), inbound("m2", 1)})
	s.ApplyConversationHistory("u2", []Message{inbound("m2", 1), inbound("m3", 2)})

	conv, _ := s.Conversation("u2")
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (snapshot replaces)", len(conv.Messages))
	}
	if conv.Messages[0].ID != "m2" || conv.Messages[1].ID != "m3" {
		t.Errorf("sequence = %s,%s, want m2,m3", conv.Messages[0].ID, conv.Messages[1].ID)
	}
}

// TestReadReceiptAppliesForInactiveConversation documents the design
// choice for the scoping ambiguity: receipts are globally true state and
// always update the store, whichever conversation the user is looking at.
// The active view only gates *sending* mark_messages_read.
func TestReadReceiptAppliesForInactiveConversation(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyNewMessage(Message{ID: "a1", SenderID: "me", RecipientID: "peerA", CreatedAt: ts(0)})
	s.ApplyNewMessage(Message{ID: "b1", SenderID: "me", RecipientID: "peerB", CreatedAt: ts(0)})

	if n := s.ApplyReadReceipt("peerA", ts(1)); n != 1 {
		t.Fatalf("updated %d, want 1", n)
	}

	convA, _ := s.Conversation("peerA")
	convB, _ := s.Conversation("peerB")
	if !convA.Messages[0].IsRead {
		t.Error("peerA's outgoing message must be marked read")
	}
	if convB.Messages[0].IsRead {
		t.Error("peerB's conversation must be untouched")
	}
}

func TestReadReceiptKeepsExistingReadAt(t *testing.T) {
	s := New("me", nil, nil)
	m := outbound("m1", 0)
	m.IsRead = false
	m.ReadAt = ts(5)
	s.ApplyNewMessage(m)

	s.ApplyReadReceipt("u2", ts(9))

	conv, _ := s.Conversation("u2")
	if !conv.Messages[0].ReadAt.Time.Equal(ts(5).Time) {
		t.Errorf("readAt = %v, want the pre-existing %v", conv.Messages[0].ReadAt, ts(5))
	}
}

func TestOrderingByCreatedAtWithArrivalTies(t *testing.T) {
	s := New("me", nil, nil)
	// Out-of-order arrival plus two messages sharing a timestamp.
	s.ApplyNewMessage(inbound("late", 5))
	s.ApplyNewMessage(inbound("early", 1))
	s.ApplyNewMessage(Message{ID: "tie-a", SenderID: "u2", RecipientID: "me", CreatedAt: ts(3)})
	s.ApplyNewMessage(Message{ID: "tie-b", SenderID: "u2", RecipientID: "me", CreatedAt: ts(3)})

	conv, _ := s.Conversation("u2")
	var got []string
	for _, m := range conv.Messages {
		got = append(got, m.ID)
	}
	want := []string{"early", "tie-a", "tie-b", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestUnreadCountDerivation(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyNewMessage(inbound("m1", 0))
	s.ApplyNewMessage(inbound("m2", 1))
	s.ApplyNewMessage(outbound("m3", 2)) // outgoing never counts

	if s.TotalUnread() != 2 {
		t.Fatalf("total unread = %d, want 2", s.TotalUnread())
	}

	if n := s.MarkConversationRead("u2", ts(3)); n != 2 {
		t.Fatalf("MarkConversationRead updated %d, want 2", n)
	}
	if s.TotalUnread() != 0 {
		t.Errorf("total unread after read = %d, want 0", s.TotalUnread())
	}
}

func TestSummariesOrderAndUpsert(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyConversationsList([]wire.ConversationSummary{
		{PeerID: "u2", PeerName: "Coach Ana", UnreadCount: 2,
			LastMessage: &wire.Message{ID: "a", SenderID: "u2", RecipientID: "me", CreatedAt: ts(1)}},
		{PeerID: "u3", PeerName: "Coach Bruno", UnreadCount: 0,
			LastMessage: &wire.Message{ID: "b", SenderID: "u3", RecipientID: "me", CreatedAt: ts(4)}},
	})

	sums := s.Summaries()
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	if sums[0].PeerID != "u3" || sums[1].PeerID != "u2" {
		t.Errorf("order = %s,%s, want u3,u2 (last message desc)", sums[0].PeerID, sums[1].PeerID)
	}
	if sums[1].UnreadCount != 2 {
		t.Errorf("u2 unread = %d, want 2 (summary value before load)", sums[1].UnreadCount)
	}
}

// TestListUpsertKeepsLoadedMessages: refreshing the conversation list
// must not discard an already-loaded message sequence.
func TestListUpsertKeepsLoadedMessages(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyConversationHistory("u2", []Message{inbound("m1", 0), inbound("m2", 1)})

	s.ApplyConversationsList([]wire.ConversationSummary{
		{PeerID: "u2", PeerName: "Coach Ana", UnreadCount: 99},
	})

	conv, _ := s.Conversation("u2")
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (list upsert must not drop them)", len(conv.Messages))
	}
	if conv.PeerName != "Coach Ana" {
		t.Errorf("peer name = %q, want Coach Ana", conv.PeerName)
	}
	// Loaded sequence wins over the summary's stale unread figure.
	if conv.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2 (derived from messages)", conv.UnreadCount)
	}
}

func TestMessageNotInvolvingLocalUserDropped(t *testing.T) {
	s := New("me", nil, nil)
	if s.ApplyNewMessage(Message{ID: "x", SenderID: "u2", RecipientID: "u3", CreatedAt: ts(0)}) {
		t.Error("message between two other users must be dropped")
	}
	if len(s.Summaries()) != 0 {
		t.Error("no conversation should have been created")
	}
}

func TestMutationPublishesUpdate(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe("store.", 10)
	defer sub.Cancel()

	s := New("me", b, nil)
	s.ApplyNewMessage(inbound("m1", 0))

	select {
	case evt := <-sub.C:
		if evt.Kind != "store.conversation_updated" {
			t.Errorf("event kind = %q, want store.conversation_updated", evt.Kind)
		}
		ref, ok := evt.Payload.(ConversationRef)
		if !ok || ref.PeerID != "u2" {
			t.Errorf("payload = %+v, want ConversationRef{u2}", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for store.conversation_updated")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New("me", nil, nil)
	s.ApplyNewMessage(inbound("m1", 0))

	conv, _ := s.Conversation("u2")
	conv.Messages[0].IsRead = true

	again, _ := s.Conversation("u2")
	if again.Messages[0].IsRead {
		t.Error("mutating a snapshot must not leak into the store")
	}
}

func TestManyConversationsTotalUnread(t *testing.T) {
	s := New("me", nil, nil)
	for i := 0; i < 5; i++ {
		peer := fmt.Sprintf("u%d", i+2)
		s.ApplyNewMessage(Message{
			ID: fmt.Sprintf("m%d", i), SenderID: peer, RecipientID: "me", CreatedAt: ts(i),
		})
	}
	if s.TotalUnread() != 5 {
		t.Errorf("total unread = %d, want 5", s.TotalUnread())
	}
}
