package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "campusmarket/internal/domain/chat"
)

func seedMessage(t *testing.T, s *MessageStore, id, listing, sender, receiver string, at time.Time) {
	t.Helper()
	err := s.Insert(context.Background(), &domainchat.Message{
		ID:         id,
		ListingID:  listing,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "content " + id,
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	s := NewMessageStore()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, s, "m1", "l1", "a", "b", at)

	err := s.Insert(context.Background(), &domainchat.Message{ID: "m1", ListingID: "l1", SenderID: "a", ReceiverID: "b", CreatedAt: at})
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("got %v, want duplicate error", err)
	}
}

func TestForUserNewestFirst(t *testing.T) {
	s := NewMessageStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, s, "m1", "l1", "alice", "bob", base)
	seedMessage(t, s, "m2", "l1", "bob", "alice", base.Add(time.Minute))
	seedMessage(t, s, "m3", "l2", "carol", "alice", base.Add(2*time.Minute))
	seedMessage(t, s, "mx", "l9", "carol", "dave", base.Add(3*time.Minute))

	rows, err := s.ForUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].ID != "m3" || rows[2].ID != "m1" {
		t.Errorf("order = %s,%s,%s", rows[0].ID, rows[1].ID, rows[2].ID)
	}
}

func TestForPairOldestFirstBothDirections(t *testing.T) {
	s := NewMessageStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, s, "m2", "l1", "bob", "alice", base.Add(time.Minute))
	seedMessage(t, s, "m1", "l1", "alice", "bob", base)
	seedMessage(t, s, "m3", "l2", "alice", "bob", base) // other listing

	rows, err := s.ForPair(context.Background(), "l1", "alice", "bob")
	if err != nil {
		t.Fatalf("ForPair: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "m1" || rows[1].ID != "m2" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestMarkReadFilteredAndIdempotent(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, s, "m1", "l1", "bob", "alice", base)
	seedMessage(t, s, "m2", "l1", "bob", "alice", base.Add(time.Minute))
	seedMessage(t, s, "m3", "l1", "alice", "bob", base.Add(2*time.Minute)) // other direction
	seedMessage(t, s, "m4", "l2", "bob", "alice", base.Add(3*time.Minute)) // other listing

	updated, err := s.MarkRead(ctx, "l1", "bob", "alice")
	if err != nil || updated != 2 {
		t.Fatalf("MarkRead = (%d, %v), want (2, nil)", updated, err)
	}
	updated, err = s.MarkRead(ctx, "l1", "bob", "alice")
	if err != nil || updated != 0 {
		t.Fatalf("repeat MarkRead = (%d, %v), want (0, nil)", updated, err)
	}

	// The other direction and the other listing stayed unread.
	unreadBob, _ := s.UnreadCount(ctx, "bob")
	if unreadBob != 1 {
		t.Errorf("bob unread = %d, want 1", unreadBob)
	}
	unreadAlice, _ := s.UnreadCount(ctx, "alice")
	if unreadAlice != 1 {
		t.Errorf("alice unread = %d, want 1", unreadAlice)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewMessageStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, s, "m1", "l1", "bob", "alice", base)

	rows, err := s.ForPair(context.Background(), "l1", "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	rows[0].Content = "mutated"

	again, err := s.ForPair(context.Background(), "l1", "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Content == "mutated" {
		t.Fatal("store row aliased to caller slice")
	}
}
