package outbox

import (
	"context"
	"fmt"

	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/broker/kafka"
)

// Announcer satisfies the chat service's announce port by recording the event
// durably instead of publishing inline; the worker delivers it to the broker.
// This keeps a broker outage from surfacing as announce failures on sends.
type Announcer struct {
	Store  Store
	Origin string
	Topic  string
}

func (a *Announcer) MessageInserted(ctx context.Context, msg *domainchat.Message) error {
	payload, err := kafka.EncodeMessageEvent(msg, a.Origin)
	if err != nil {
		return err
	}
	return a.Store.Add(ctx, EventRecord{
		ID:        fmt.Sprintf("msg-%s", msg.ID),
		Topic:     a.topic(),
		Key:       msg.ListingID,
		Payload:   payload,
		CreatedAt: msg.CreatedAt,
	})
}

func (a *Announcer) topic() string {
	if a.Topic != "" {
		return a.Topic
	}
	return kafka.TopicMessageInserted
}
