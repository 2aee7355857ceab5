package cache

import (
	"context"
	"testing"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/store"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWriterFlushesDirtyConversation(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	s := store.New("me", b, nil)

	w := NewWriter(db, s, nil, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, b)
	defer w.Stop()

	s.ApplyNewMessage(store.FromWire(cachedMsg("m1", 0, false)))
	s.ApplyNewMessage(store.FromWire(cachedMsg("m2", 1, false)))

	waitFor(t, func() bool {
		msgs, err := db.ListMessages("u2", 10)
		return err == nil && len(msgs) == 2
	})

	convs, err := db.ListConversations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].PeerID != "u2" {
		t.Fatalf("cached conversations = %+v, want one row for u2", convs)
	}
	if convs[0].UnreadCount != 2 {
		t.Errorf("cached unread = %d, want 2", convs[0].UnreadCount)
	}
	if convs[0].LastMessagePreview != "msg-m2" {
		t.Errorf("preview = %q, want %q", convs[0].LastMessagePreview, "msg-m2")
	}
}

func TestWriterStopFlushesPending(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	s := store.New("me", b, nil)

	// A long interval so only the stop-time flush can persist anything.
	w := NewWriter(db, s, nil, time.Hour)
	w.Start(context.Background(), b)

	s.ApplyNewMessage(store.FromWire(cachedMsg("m1", 0, false)))
	time.Sleep(50 * time.Millisecond) // let the bus event reach the writer
	w.Stop()

	waitFor(t, func() bool {
		msgs, err := db.ListMessages("u2", 10)
		return err == nil && len(msgs) == 1
	})
}

func TestSeedReplaysCache(t *testing.T) {
	db := testDB(t)

	// First run: populate the cache through a writer.
	b := bus.New()
	s := store.New("me", b, nil)
	w := NewWriter(db, s, nil, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx, b)

	read := cachedMsg("m1", 0, false)
	read.IsRead = true
	s.ApplyNewMessage(store.FromWire(read))
	s.ApplyNewMessage(store.FromWire(cachedMsg("m2", 1, false)))

	waitFor(t, func() bool {
		msgs, err := db.ListMessages("u2", 10)
		return err == nil && len(msgs) == 2
	})
	cancel()
	w.Stop()

	// Second run: a fresh store seeded from cache before any sync.
	s2 := store.New("me", bus.New(), nil)
	if err := Seed(db, s2, 50); err != nil {
		t.Fatal(err)
	}

	conv, ok := s2.Conversation("u2")
	if !ok {
		t.Fatal("seeded store has no conversation for u2")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("seeded %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[0].ID != "m1" || conv.Messages[1].ID != "m2" {
		t.Errorf("seeded order = %s,%s, want m1,m2", conv.Messages[0].ID, conv.Messages[1].ID)
	}
	if !conv.Messages[0].IsRead {
		t.Error("read mark lost across seed")
	}
	if conv.UnreadCount != 1 {
		t.Errorf("seeded unread = %d, want 1", conv.UnreadCount)
	}
}
