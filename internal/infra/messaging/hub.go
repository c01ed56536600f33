package messaging

import (
	"sync"

	domainchat "campusmarket/internal/domain/chat"
)

// Hub is the in-process live delivery channel. Message inserts are published
// into it (directly after a local send, or by a store changefeed / broker
// bridge) and fanned out to matching subscriptions.
//
// Delivery is at-least-once: more than one feed may publish the same insert,
// and a reconnecting feed may republish rows it already saw. Consumers must
// de-duplicate by message id. No ordering across distinct messages is
// guaranteed; display ordering is the session's job.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*Subscription)}
}

// Subscription binds a delivery callback to a conversation or user-wide
// filter. Close is idempotent; once it returns, the callback does not run
// again.
type Subscription struct {
	hub    *Hub
	id     int
	match  func(*domainchat.Message) bool
	fn     func(*domainchat.Message)
	mu     sync.Mutex
	closed bool
}

// Subscribe delivers every published message belonging to the (listing, A, B)
// pair, in either direction.
func (h *Hub) Subscribe(listingID, userA, userB string, fn func(*domainchat.Message)) *Subscription {
	return h.add(func(m *domainchat.Message) bool {
		return m.Involves(listingID, userA, userB)
	}, fn)
}

// SubscribeUser delivers every published message addressed to the user,
// regardless of listing. Used for inbox badges and notifications.
func (h *Hub) SubscribeUser(userID string, fn func(*domainchat.Message)) *Subscription {
	return h.add(func(m *domainchat.Message) bool {
		return m.ReceiverID == userID
	}, fn)
}

func (h *Hub) add(match func(*domainchat.Message) bool, fn func(*domainchat.Message)) *Subscription {
	sub := &Subscription{hub: h, match: match, fn: fn}
	h.mu.Lock()
	sub.id = h.next
	h.next++
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Publish fans the message out to every matching open subscription. Callbacks
// run on the publisher's goroutine; subscribers that need decoupling buffer on
// their own channel.
func (h *Hub) Publish(msg *domainchat.Message) {
	if msg == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.match(msg) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(msg)
	}
}

// deliver invokes the callback under the subscription lock so Close can
// guarantee no invocation happens after it returns.
func (s *Subscription) deliver(msg *domainchat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(msg)
}

// Close detaches the subscription. Safe to call multiple times; when it
// returns, any in-flight delivery has finished and no further callback fires.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
}
