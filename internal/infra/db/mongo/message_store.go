package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "campusmarket/internal/domain/chat"
)

// MessageStore persists the append-only message log in the "messages"
// collection.
type MessageStore struct {
	col *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{col: db.Collection("messages")}
}

func (s *MessageStore) Insert(ctx context.Context, msg *domainchat.Message) error {
	_, err := s.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

func (s *MessageStore) ForUser(ctx context.Context, userID string) ([]*domainchat.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"receiver_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, filter, opts)
}

func (s *MessageStore) ForPair(ctx context.Context, listingID, userA, userB string) ([]*domainchat.Message, error) {
	filter := bson.M{
		"listing_id": listingID,
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

// MarkRead is a filtered bulk update; rerunning it matches nothing and updates
// zero rows.
func (s *MessageStore) MarkRead(ctx context.Context, listingID, senderID, receiverID string) (int64, error) {
	filter := bson.M{
		"listing_id":  listingID,
		"sender_id":   senderID,
		"receiver_id": receiverID,
		"read":        false,
	}
	res, err := s.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MessageStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"receiver_id": userID, "read": false})
}

func (s *MessageStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainchat.Message, error) {
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]*domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toMessage())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type messageDocument struct {
	ID         string    `bson:"_id"`
	ListingID  string    `bson:"listing_id"`
	SenderID   string    `bson:"sender_id"`
	ReceiverID string    `bson:"receiver_id"`
	Content    string    `bson:"content"`
	Read       bool      `bson:"read"`
	CreatedAt  time.Time `bson:"created_at"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:         m.ID,
		ListingID:  m.ListingID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

func (d messageDocument) toMessage() *domainchat.Message {
	return &domainchat.Message{
		ID:         d.ID,
		ListingID:  d.ListingID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		Read:       d.Read,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

var _ domainchat.MessageStore = (*MessageStore)(nil)
