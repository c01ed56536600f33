package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "campusmarket/internal/domain/chat"
	domainlistings "campusmarket/internal/domain/listings"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/messaging"
)

var ErrStoreUnavailable = errors.New("chat: message store unavailable")

// Announcer propagates a persisted message to other service instances, e.g.
// through a broker topic. Local fan-out goes through the hub regardless.
type Announcer interface {
	MessageInserted(ctx context.Context, msg *domainchat.Message) error
}

// Service orchestrates the chat core: sending, fetching with the read-state
// transition, and conversation aggregation. It holds no cross-request mutable
// state; every call re-derives from the store.
type Service struct {
	Messages domainchat.MessageStore
	Listings domainlistings.Directory
	Users    domainuser.Directory
	Hub      *messaging.Hub
	Announce Announcer
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

type SendParams struct {
	ListingID  string
	SenderID   string
	ReceiverID string
	Content    string
}

// Send validates, persists and fans out a new message. A missing listing fails
// the send; announce failures do not (the insert already happened and local
// subscribers were notified — remote sessions recover on their next fetch).
func (s *Service) Send(ctx context.Context, params SendParams) (*domainchat.Message, error) {
	if s.Messages == nil {
		return nil, ErrStoreUnavailable
	}
	if s.Listings != nil {
		if _, err := s.Listings.SnapshotByID(ctx, domainlistings.ListingID(params.ListingID)); err != nil {
			if errors.Is(err, domainlistings.ErrNotFound) {
				return nil, domainlistings.ErrNotFound
			}
			return nil, fmt.Errorf("verify listing: %w", err)
		}
	}
	msg, err := domainchat.NewMessage(domainchat.CreateParams{
		ID:         s.newID(),
		ListingID:  params.ListingID,
		SenderID:   params.SenderID,
		ReceiverID: params.ReceiverID,
		Content:    params.Content,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if s.Hub != nil {
		s.Hub.Publish(msg)
	}
	if s.Announce != nil {
		if err := s.Announce.MessageInserted(ctx, msg); err != nil && s.Logger != nil {
			s.Logger.Warn("message announce failed", "message_id", msg.ID, "error", err)
		}
	}
	if s.Logger != nil {
		s.Logger.Info("message sent", "message_id", msg.ID, "listing_id", msg.ListingID, "sender_id", msg.SenderID, "receiver_id", msg.ReceiverID)
	}
	return msg, nil
}

// History returns the conversation's messages oldest first and transitions the
// viewer's inbound messages to read. The read-state update is best effort: its
// failure is logged and the fetched messages are still returned.
func (s *Service) History(ctx context.Context, listingID, viewerID, otherID string) ([]*domainchat.Message, error) {
	if s.Messages == nil {
		return nil, ErrStoreUnavailable
	}
	msgs, err := s.Messages.ForPair(ctx, listingID, viewerID, otherID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	domainchat.SortMessages(msgs)

	if _, err := s.Messages.MarkRead(ctx, listingID, otherID, viewerID); err != nil && s.Logger != nil {
		s.Logger.Warn("mark read failed", "listing_id", listingID, "viewer_id", viewerID, "error", err)
	}
	return msgs, nil
}

// MarkRead flips every unread message from otherID to viewerID on the listing.
// Idempotent; zero updated rows is a normal outcome.
func (s *Service) MarkRead(ctx context.Context, listingID, viewerID, otherID string) (int64, error) {
	if s.Messages == nil {
		return 0, ErrStoreUnavailable
	}
	return s.Messages.MarkRead(ctx, listingID, otherID, viewerID)
}

// Conversations derives the viewer's conversation list from the message log
// and enriches each summary with listing and counterpart display data.
// Missing listings or users degrade to placeholders; a store failure fails the
// whole call.
func (s *Service) Conversations(ctx context.Context, viewerID string) ([]*domainchat.Conversation, error) {
	if s.Messages == nil {
		return nil, ErrStoreUnavailable
	}
	msgs, err := s.Messages.ForUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("fetch message log: %w", err)
	}
	summaries := deriveSummaries(viewerID, msgs)
	for _, conv := range summaries {
		s.enrich(ctx, conv)
	}
	return summaries, nil
}

// UnreadTotal counts unread messages addressed to the user across all
// conversations. Best-effort badge data, always re-derived from the store.
func (s *Service) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	if s.Messages == nil {
		return 0, ErrStoreUnavailable
	}
	return s.Messages.UnreadCount(ctx, userID)
}

func (s *Service) enrich(ctx context.Context, conv *domainchat.Conversation) {
	if s.Listings != nil {
		snap, err := s.Listings.SnapshotByID(ctx, domainlistings.ListingID(conv.ListingID))
		if err != nil {
			snap = domainlistings.PlaceholderSnapshot(domainlistings.ListingID(conv.ListingID))
			if !errors.Is(err, domainlistings.ErrNotFound) && s.Logger != nil {
				s.Logger.Warn("listing lookup failed", "listing_id", conv.ListingID, "error", err)
			}
		}
		conv.ListingTitle = snap.Title
		conv.ListingImage = snap.ImageURL
		conv.ListingStatus = string(snap.Status)
	}
	if s.Users != nil {
		profile, err := s.Users.ProfileByID(ctx, domainuser.ID(conv.OtherUserID))
		if err != nil {
			profile = domainuser.Profile{ID: domainuser.ID(conv.OtherUserID), Name: "Unknown User"}
			if !errors.Is(err, domainuser.ErrNotFound) && s.Logger != nil {
				s.Logger.Warn("user lookup failed", "user_id", conv.OtherUserID, "error", err)
			}
		}
		conv.OtherUserName = profile.Name
		conv.OtherUserPicture = profile.PictureURL
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
