package chat

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrIDRequired       = errors.New("chat: message id is required")
	ErrListingRequired  = errors.New("chat: listing id is required")
	ErrSenderRequired   = errors.New("chat: sender id is required")
	ErrReceiverRequired = errors.New("chat: receiver id is required")
	ErrSelfMessage      = errors.New("chat: sender and receiver must differ")
	ErrEmptyContent     = errors.New("chat: content is empty")
	ErrContentTooLong   = errors.New("chat: content exceeds maximum length")
	ErrNotFound         = errors.New("chat: message not found")
)

// MaxContentLength bounds message content in runes.
const MaxContentLength = 2000

// Message is the atomic chat unit. Listing, participants, content and creation
// time are immutable after creation; only Read may transition, false to true.
type Message struct {
	ID         string
	ListingID  string
	SenderID   string
	ReceiverID string
	Content    string
	Read       bool
	CreatedAt  time.Time
}

// CreateParams carries validated input for NewMessage.
type CreateParams struct {
	ID         string
	ListingID  string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
}

// NewMessage validates and builds a Message. Content is trimmed; send-to-self
// is rejected here so no layer above has to special-case it.
func NewMessage(params CreateParams) (*Message, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	senderID := strings.TrimSpace(params.SenderID)
	if senderID == "" {
		return nil, ErrSenderRequired
	}
	receiverID := strings.TrimSpace(params.ReceiverID)
	if receiverID == "" {
		return nil, ErrReceiverRequired
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Message{
		ID:         id,
		ListingID:  listingID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// Counterpart returns the other party relative to viewer. When sender equals
// viewer the counterpart is the receiver, otherwise the sender; a self-pair
// therefore resolves without panicking.
func (m *Message) Counterpart(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// PairKey identifies the conversation a message belongs to from the viewer's
// perspective: listing plus counterpart.
func (m *Message) PairKey(viewerID string) string {
	return m.ListingID + "_" + m.Counterpart(viewerID)
}

// Involves reports whether the message belongs to the (listing, A, B) pair in
// either direction.
func (m *Message) Involves(listingID, userA, userB string) bool {
	if m.ListingID != listingID {
		return false
	}
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}

// ConversationID builds the canonical conversation identifier for two users on
// a listing. The participant pair is sorted so both sides derive the same id.
func ConversationID(userA, userB, listingID string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1] + "_" + listingID
}

// SortMessages orders messages ascending by creation time, ties broken by id
// so equal timestamps still produce a stable order.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Less reports whether m orders before other in display order.
func (m *Message) Less(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// TruncatePreview shortens content for conversation list previews.
func TruncatePreview(content string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 50
	}
	runes := []rune(content)
	if len(runes) <= maxRunes {
		return content
	}
	return string(runes[:maxRunes]) + "..."
}
