package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/messaging"
)

var (
	ErrSessionClosed   = errors.New("chat: session closed")
	ErrSessionNotEmpty = errors.New("chat: session already loaded")
	ErrSessionNotReady = errors.New("chat: session not loaded")
)

// SessionState models the lifecycle of an open chat view.
type SessionState int

const (
	SessionEmpty SessionState = iota
	SessionLoaded
	SessionLive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionEmpty:
		return "empty"
	case SessionLoaded:
		return "loaded"
	case SessionLive:
		return "live"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// typingTTL is how long a typing signal stays visible without renewal.
const typingTTL = 5 * time.Second

// Session is the per-view merge state machine for one conversation. It owns
// the displayed message list, merging the initial fetch with live-delivered
// messages: duplicates (by id) are dropped and order is kept non-decreasing by
// creation time, ties broken by id.
//
// The initial fetch, the sender's own confirmed send and the live channel can
// all surface the same message; identity de-duplication is the safety net in
// place of any cross-path locking.
type Session struct {
	svc       *Service
	hub       *messaging.Hub
	listingID string
	viewerID  string
	otherID   string

	mu       sync.Mutex
	state    SessionState
	messages []*domainchat.Message
	sub      *messaging.Subscription
	typing   map[string]time.Time
	sink     func(*domainchat.Message)
}

// NewSession builds an Empty session for the viewer's conversation with
// otherID on the listing. sink, if non-nil, receives each message newly merged
// from the live channel (not ones already known); it runs outside the session
// lock.
func NewSession(svc *Service, hub *messaging.Hub, listingID, viewerID, otherID string, sink func(*domainchat.Message)) *Session {
	return &Session{
		svc:       svc,
		hub:       hub,
		listingID: listingID,
		viewerID:  viewerID,
		otherID:   otherID,
		typing:    make(map[string]time.Time),
		sink:      sink,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load performs the initial fetch (which also marks inbound messages read) and
// moves Empty -> Loaded. Live messages arriving while the fetch is in flight
// are merged through the same de-duplication path once the session is live.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case SessionClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case SessionEmpty:
	default:
		s.mu.Unlock()
		return ErrSessionNotEmpty
	}
	s.mu.Unlock()

	msgs, err := s.svc.History(ctx, s.listingID, s.viewerID, s.otherID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return ErrSessionClosed
	}
	for _, msg := range msgs {
		s.insertLocked(msg)
	}
	s.state = SessionLoaded
	return nil
}

// GoLive opens the live subscription, Loaded -> Live.
func (s *Session) GoLive() error {
	s.mu.Lock()
	switch s.state {
	case SessionClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case SessionLoaded:
	default:
		s.mu.Unlock()
		return ErrSessionNotReady
	}
	s.state = SessionLive
	s.mu.Unlock()

	if s.hub != nil {
		sub := s.hub.Subscribe(s.listingID, s.viewerID, s.otherID, s.merge)
		s.mu.Lock()
		if s.state == SessionClosed {
			s.mu.Unlock()
			sub.Close()
			return ErrSessionClosed
		}
		s.sub = sub
		s.mu.Unlock()
	}
	return nil
}

// Send posts a message through the service and merges the persisted result.
// The canonical flow awaits the server-assigned message rather than appending
// an optimistic copy; the live channel may deliver the same message again and
// de-duplication absorbs it.
func (s *Session) Send(ctx context.Context, content string) (*domainchat.Message, error) {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	msg, err := s.svc.Send(ctx, SendParams{
		ListingID:  s.listingID,
		SenderID:   s.viewerID,
		ReceiverID: s.otherID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state != SessionClosed {
		s.insertLocked(msg)
	}
	s.mu.Unlock()
	return msg, nil
}

// merge is the live-delivery callback.
func (s *Session) merge(msg *domainchat.Message) {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	inserted := s.insertLocked(msg)
	sink := s.sink
	s.mu.Unlock()

	if inserted && sink != nil {
		sink(msg)
	}
}

// insertLocked merges one message into the ordered list. Returns false on a
// duplicate id. Caller holds s.mu.
func (s *Session) insertLocked(msg *domainchat.Message) bool {
	for _, existing := range s.messages {
		if existing.ID == msg.ID {
			return false
		}
	}
	pos := len(s.messages)
	for pos > 0 && msg.Less(s.messages[pos-1]) {
		pos--
	}
	s.messages = append(s.messages, nil)
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = msg
	return true
}

// Messages returns a copy of the displayed list, oldest first.
func (s *Session) Messages() []*domainchat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domainchat.Message(nil), s.messages...)
}

// DateGroup is one calendar day of messages for display.
type DateGroup struct {
	Date     string
	Messages []*domainchat.Message
}

// Groups partitions the ordered list into date buckets, one per distinct
// calendar day (UTC), ascending, preserving in-day order.
func (s *Session) Groups() []DateGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]DateGroup, 0)
	current := ""
	for _, msg := range s.messages {
		day := msg.CreatedAt.UTC().Format("2006-01-02")
		if day != current {
			current = day
			groups = append(groups, DateGroup{Date: day})
		}
		last := len(groups) - 1
		groups[last].Messages = append(groups[last].Messages, msg)
	}
	return groups
}

// SetTyping records a typing signal from a participant. State is owned by the
// session, not shared process-wide.
func (s *Session) SetTyping(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	if active {
		s.typing[userID] = time.Now()
	} else {
		delete(s.typing, userID)
	}
}

// TypingUsers lists participants with a typing signal newer than typingTTL.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-typingTTL)
	users := make([]string, 0, len(s.typing))
	for id, at := range s.typing {
		if at.After(cutoff) {
			users = append(users, id)
		}
	}
	return users
}

// Close cancels the subscription and freezes the session. When it returns no
// further state mutation is observable, even if the transport had buffered
// deliveries.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = SessionClosed
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	sub.Close()
}
