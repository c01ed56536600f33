package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	domainchat "campusmarket/internal/domain/chat"
)

var ErrDuplicateMessage = errors.New("memory: duplicate message id")

// MessageStore keeps the message log in memory. Suitable for development and
// tests; rows are append-only and only the read flag ever changes, matching
// the persistence contract.
type MessageStore struct {
	mu   sync.RWMutex
	rows []*domainchat.Message
	byID map[string]*domainchat.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[string]*domainchat.Message)}
}

func (s *MessageStore) Insert(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil {
		return domainchat.ErrIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[msg.ID]; exists {
		return ErrDuplicateMessage
	}
	stored := cloneMessage(msg)
	s.byID[stored.ID] = stored
	s.rows = append(s.rows, stored)
	return nil
}

// ForUser returns the user's full log, newest first.
func (s *MessageStore) ForUser(ctx context.Context, userID string) ([]*domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainchat.Message, 0)
	for _, row := range s.rows {
		if row.SenderID == userID || row.ReceiverID == userID {
			out = append(out, cloneMessage(row))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ForPair returns one conversation's messages, oldest first.
func (s *MessageStore) ForPair(ctx context.Context, listingID, userA, userB string) ([]*domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainchat.Message, 0)
	for _, row := range s.rows {
		if row.Involves(listingID, userA, userB) {
			out = append(out, cloneMessage(row))
		}
	}
	domainchat.SortMessages(out)
	return out, nil
}

// MarkRead performs the filtered bulk unread -> read transition. A second call
// matches nothing and reports zero, which is success.
func (s *MessageStore) MarkRead(ctx context.Context, listingID, senderID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, row := range s.rows {
		if row.ListingID == listingID && row.SenderID == senderID && row.ReceiverID == receiverID && !row.Read {
			row.Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MessageStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, row := range s.rows {
		if row.ReceiverID == userID && !row.Read {
			count++
		}
	}
	return count, nil
}

func cloneMessage(m *domainchat.Message) *domainchat.Message {
	copyMsg := *m
	return &copyMsg
}

var _ domainchat.MessageStore = (*MessageStore)(nil)
