package chat

import (
	"testing"
	"time"

	domainchat "campusmarket/internal/domain/chat"
)

func msgAt(id, listing, sender, receiver, content string, read bool, at time.Time) *domainchat.Message {
	return &domainchat.Message{
		ID:         id,
		ListingID:  listing,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Read:       read,
		CreatedAt:  at,
	}
}

func TestDeriveSummariesFirstSeenWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Newest first, as the store returns them.
	log := []*domainchat.Message{
		msgAt("m3", "l1", "bob", "alice", "newest", false, base.Add(2*time.Hour)),
		msgAt("m2", "l1", "alice", "bob", "middle", false, base.Add(time.Hour)),
		msgAt("m1", "l1", "bob", "alice", "oldest", true, base),
	}

	convs := deriveSummaries("alice", log)
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	conv := convs[0]
	if conv.LastMessage != "newest" {
		t.Errorf("preview = %q, later rows must not overwrite the first seen", conv.LastMessage)
	}
	if conv.LastMessageSenderID != "bob" {
		t.Errorf("last sender = %q", conv.LastMessageSenderID)
	}
	if conv.IsRead {
		t.Error("newest inbound message is unread, conversation must be unread")
	}
	if conv.UnreadCount != 1 {
		t.Errorf("unread count = %d, want 1 (m1 is read, m2 is outbound)", conv.UnreadCount)
	}
}

func TestDeriveSummariesSplitsByListingAndCounterpart(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	log := []*domainchat.Message{
		msgAt("m4", "l2", "bob", "alice", "same pair other listing", false, base.Add(3*time.Hour)),
		msgAt("m3", "l1", "carol", "alice", "other pair", false, base.Add(2*time.Hour)),
		msgAt("m2", "l1", "alice", "bob", "reply", false, base.Add(time.Hour)),
		msgAt("m1", "l1", "bob", "alice", "first", false, base),
	}

	convs := deriveSummaries("alice", log)
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	// Aggregation order follows most recent activity.
	wantIDs := []string{"l2_bob", "l1_carol", "l1_bob"}
	for i, want := range wantIDs {
		if convs[i].ID != want {
			t.Errorf("conversation[%d] = %q, want %q", i, convs[i].ID, want)
		}
	}
}

func TestDeriveSummariesOutboundNewestIsRead(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	log := []*domainchat.Message{
		msgAt("m2", "l1", "alice", "bob", "viewer spoke last", false, base.Add(time.Hour)),
		msgAt("m1", "l1", "bob", "alice", "unread inbound", false, base),
	}

	convs := deriveSummaries("alice", log)
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if !convs[0].IsRead {
		t.Error("conversation whose newest message is outbound must read as seen")
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("unread count = %d, older inbound rows still count", convs[0].UnreadCount)
	}
}

func TestDeriveSummariesEmptyLog(t *testing.T) {
	convs := deriveSummaries("alice", nil)
	if convs == nil || len(convs) != 0 {
		t.Fatalf("empty log must yield empty non-nil slice, got %#v", convs)
	}
}

func TestDeriveSummariesSelfPairDoesNotPanic(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	log := []*domainchat.Message{
		msgAt("m1", "l1", "alice", "alice", "corrupt row", false, base),
	}
	convs := deriveSummaries("alice", log)
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if convs[0].OtherUserID != "alice" {
		t.Errorf("self pair counterpart = %q", convs[0].OtherUserID)
	}
}
