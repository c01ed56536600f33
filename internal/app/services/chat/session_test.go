package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/messaging"
	"campusmarket/internal/infra/storage/memory"
)

func newSessionFixture(t *testing.T) (*Service, *messaging.Hub, *memory.MessageStore) {
	t.Helper()
	store := memory.NewMessageStore()
	svc := newTestService(store)
	hub := messaging.NewHub()
	svc.Hub = hub
	return svc, hub, store
}

func TestSessionLifecycle(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)

	if sess.State() != SessionEmpty {
		t.Fatalf("initial state = %v", sess.State())
	}
	if err := sess.GoLive(); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("GoLive before Load: %v", err)
	}
	if err := sess.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.State() != SessionLoaded {
		t.Fatalf("state after Load = %v", sess.State())
	}
	if err := sess.Load(context.Background()); !errors.Is(err, ErrSessionNotEmpty) {
		t.Fatalf("second Load: %v", err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatalf("GoLive: %v", err)
	}
	if sess.State() != SessionLive {
		t.Fatalf("state after GoLive = %v", sess.State())
	}

	sess.Close()
	if sess.State() != SessionClosed {
		t.Fatalf("state after Close = %v", sess.State())
	}
	if err := sess.Load(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Load after Close: %v", err)
	}
	sess.Close() // idempotent
}

func TestSessionLoadReplaysHistoryInOrder(t *testing.T) {
	svc, hub, store := newSessionFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		msg := msgAt(string(rune('a'+i)), "l1", "bob", "alice", content, false, base.Add(time.Duration(i)*time.Minute))
		if err := store.Insert(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)
	if err := sess.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	msgs := sess.Messages()
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("unexpected replay %v", msgs)
	}

	// Viewing marked the inbound messages read.
	unread, _ := store.UnreadCount(ctx, "alice")
	if unread != 0 {
		t.Errorf("unread after load = %d", unread)
	}
}

func TestSessionMergeDeduplicates(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	ctx := context.Background()

	var sunk []*domainchat.Message
	sess := NewSession(svc, hub, "l1", "alice", "bob", func(m *domainchat.Message) {
		sunk = append(sunk, m)
	})
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatal(err)
	}

	msg := msgAt("m1", "l1", "bob", "alice", "hello", false, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	hub.Publish(msg)
	hub.Publish(msg) // redundant feed redelivery

	if got := len(sess.Messages()); got != 1 {
		t.Fatalf("merged %d messages, want 1", got)
	}
	if len(sunk) != 1 {
		t.Fatalf("sink fired %d times, want 1", len(sunk))
	}
}

func TestSessionSendMergesOwnMessageOnce(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	ctx := context.Background()

	var sunk []*domainchat.Message
	sess := NewSession(svc, hub, "l1", "alice", "bob", func(m *domainchat.Message) {
		sunk = append(sunk, m)
	})
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatal(err)
	}

	// The service publishes into the hub, which delivers back into this very
	// session before Send returns; the direct merge must then be a no-op.
	msg, err := sess.Send(ctx, "is this still available?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := sess.Messages()
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("own send merged %d times: %v", len(msgs), msgs)
	}
}

func TestSessionOrdersIdenticalTimestampsByID(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatal(err)
	}

	// Arrival order b, a, c with one shared timestamp.
	hub.Publish(msgAt("b", "l1", "bob", "alice", "B", false, at))
	hub.Publish(msgAt("a", "l1", "bob", "alice", "A", false, at))
	hub.Publish(msgAt("c", "l1", "bob", "alice", "C", false, at.Add(-time.Minute)))

	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	got := msgs[0].ID + msgs[1].ID + msgs[2].ID
	if got != "cab" {
		t.Errorf("order = %q, want cab", got)
	}
}

func TestSessionCloseStopsDelivery(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	ctx := context.Background()

	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatal(err)
	}
	sess.Close()

	hub.Publish(msgAt("m1", "l1", "bob", "alice", "late", false, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	if got := len(sess.Messages()); got != 0 {
		t.Fatalf("closed session absorbed %d messages", got)
	}
}

func TestSessionIgnoresOtherConversations(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	ctx := context.Background()

	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.GoLive(); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	hub.Publish(msgAt("x1", "l2", "bob", "alice", "other listing", false, at))
	hub.Publish(msgAt("x2", "l1", "carol", "alice", "other pair", false, at))

	if got := len(sess.Messages()); got != 0 {
		t.Fatalf("session leaked %d foreign messages", got)
	}
}

func TestSessionGroupsByCalendarDay(t *testing.T) {
	svc, hub, store := newSessionFixture(t)
	ctx := context.Background()

	day1 := time.Date(2026, 2, 28, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)
	for _, m := range []*domainchat.Message{
		msgAt("m1", "l1", "bob", "alice", "late night", false, day1),
		msgAt("m2", "l1", "alice", "bob", "after midnight", false, day2),
		msgAt("m3", "l1", "bob", "alice", "morning", false, day2.Add(8*time.Hour)),
	} {
		if err := store.Insert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)
	if err := sess.Load(ctx); err != nil {
		t.Fatal(err)
	}

	groups := sess.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Date != "2026-02-28" || groups[1].Date != "2026-03-01" {
		t.Errorf("group dates = %q, %q", groups[0].Date, groups[1].Date)
	}
	if len(groups[0].Messages) != 1 || len(groups[1].Messages) != 2 {
		t.Errorf("group sizes = %d, %d", len(groups[0].Messages), len(groups[1].Messages))
	}
}

func TestSessionTyping(t *testing.T) {
	svc, hub, _ := newSessionFixture(t)
	sess := NewSession(svc, hub, "l1", "alice", "bob", nil)

	sess.SetTyping("bob", true)
	users := sess.TypingUsers()
	if len(users) != 1 || users[0] != "bob" {
		t.Fatalf("typing users = %v", users)
	}
	sess.SetTyping("bob", false)
	if got := sess.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing users after clear = %v", got)
	}
}
