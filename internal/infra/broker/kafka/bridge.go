package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/messaging"
)

// TopicMessageInserted carries one event per persisted chat message.
const TopicMessageInserted = "chat.message.inserted"

type messageEvent struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
	Origin     string    `json:"origin"`
}

// EncodeMessageEvent serializes a persisted message into the wire event
// consumed by HubBridge. Callers that defer publishing (the outbox worker)
// encode at insert time so the payload survives restarts.
func EncodeMessageEvent(msg *domainchat.Message, origin string) ([]byte, error) {
	return json.Marshal(messageEvent{
		ID:         msg.ID,
		ListingID:  msg.ListingID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt,
		Origin:     origin,
	})
}

// Announcer publishes message-inserted events so other instances can fan them
// out to their local subscribers.
type Announcer struct {
	Producer *Producer
	Origin   string
	Topic    string
}

func (a *Announcer) MessageInserted(ctx context.Context, msg *domainchat.Message) error {
	payload, err := EncodeMessageEvent(msg, a.Origin)
	if err != nil {
		return err
	}
	headers := map[string]string{"content-type": "application/json"}
	// Keyed by listing so one conversation's events stay on one partition.
	return a.Producer.Publish(ctx, a.topic(), msg.ListingID, payload, headers)
}

func (a *Announcer) topic() string {
	if a.Topic != "" {
		return a.Topic
	}
	return TopicMessageInserted
}

// HubBridge consumes message-inserted events and republishes them into the
// local hub. Events originated by this instance are skipped; its hub already
// saw the direct publish (and a duplicate would be dropped by session
// de-duplication anyway).
type HubBridge struct {
	Hub    *messaging.Hub
	Origin string
	Logger *slog.Logger
}

func (b HubBridge) Handle(ctx context.Context, raw *sarama.ConsumerMessage) error {
	var event messageEvent
	if err := json.Unmarshal(raw.Value, &event); err != nil {
		if b.Logger != nil {
			b.Logger.Warn("message event decode failed", "topic", raw.Topic, "offset", raw.Offset, "error", err)
		}
		// Malformed payloads are not retryable.
		return nil
	}
	if event.Origin != "" && event.Origin == b.Origin {
		return nil
	}
	b.Hub.Publish(&domainchat.Message{
		ID:         event.ID,
		ListingID:  event.ListingID,
		SenderID:   event.SenderID,
		ReceiverID: event.ReceiverID,
		Content:    event.Content,
		Read:       event.Read,
		CreatedAt:  event.CreatedAt,
	})
	return nil
}

var _ MessageHandler = HubBridge{}
