package chat

import (
	"context"
	"time"
)

// Conversation is a derived summary of a (listing, counterpart) pair relative
// to a viewing user. It is never persisted; the aggregator recomputes it from
// the message log on demand.
type Conversation struct {
	ID                  string
	ListingID           string
	ListingTitle        string
	ListingImage        string
	ListingStatus       string
	OtherUserID         string
	OtherUserName       string
	OtherUserPicture    string
	LastMessage         string
	LastMessageTime     time.Time
	LastMessageSenderID string
	IsRead              bool
	UnreadCount         int
}

// MessageStore is the persistence collaborator for messages. Implementations
// append immutable rows, answer filtered point reads and perform the bulk
// read-flag transition.
type MessageStore interface {
	// Insert persists a new message row.
	Insert(ctx context.Context, msg *Message) error
	// ForUser returns every message where the user is sender or receiver,
	// newest first.
	ForUser(ctx context.Context, userID string) ([]*Message, error)
	// ForPair returns the messages of one conversation, oldest first.
	ForPair(ctx context.Context, listingID, userA, userB string) ([]*Message, error)
	// MarkRead flips read=false rows matching (listing, sender, receiver) to
	// read=true and returns how many rows changed. Zero matches is not an
	// error; the transition is one-directional so the call is idempotent.
	MarkRead(ctx context.Context, listingID, senderID, receiverID string) (int64, error)
	// UnreadCount counts read=false rows addressed to the user.
	UnreadCount(ctx context.Context, userID string) (int64, error)
}
