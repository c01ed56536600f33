package outbox

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"
)

// claimTimeout bounds how long a claim sticks to a worker. A worker that
// crashes between Claim and MarkSent/MarkFailed leaves the event in CLAIMED;
// after this long the event is due again and any worker may re-claim it.
const claimTimeout = time.Minute

// EventRecord is one message-inserted event awaiting broker publication.
// Key is the partition key (the listing id, so one conversation stays on one
// partition); Payload is the already-encoded wire event.
type EventRecord struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store persists pending events. MongoStore is the durable implementation;
// tests substitute an in-memory one.
type Store interface {
	Add(ctx context.Context, record EventRecord) error
	Claim(ctx context.Context, workerID string) (*EventRecord, int, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	col := db.Collection("chat_outbox")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &MongoStore{col: col}
}

type eventDocument struct {
	ID          string    `bson:"_id"`
	Topic       string    `bson:"topic"`
	Key         string    `bson:"key"`
	Payload     []byte    `bson:"payload"`
	State       string    `bson:"state"`
	Attempts    int       `bson:"attempts"`
	NextAttempt time.Time `bson:"next_attempt_at"`
	ClaimedBy   string    `bson:"claimed_by,omitempty"`
	ClaimedAt   time.Time `bson:"claimed_at,omitempty"`
	SentAt      time.Time `bson:"sent_at,omitempty"`
	LastError   string    `bson:"last_error,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (s *MongoStore) Add(ctx context.Context, record EventRecord) error {
	now := time.Now().UTC()
	doc := eventDocument{
		ID:          record.ID,
		Topic:       record.Topic,
		Key:         record.Key,
		Payload:     record.Payload,
		State:       stateNew,
		NextAttempt: now,
		CreatedAt:   record.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

// claimFilter matches events due for delivery: NEW or FAILED past their next
// attempt, plus CLAIMED events whose claim is older than claimTimeout. The
// stale branch recovers events orphaned by a worker that died mid-claim.
func claimFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{
			"state":           bson.M{"$in": []string{stateNew, stateFailed}},
			"next_attempt_at": bson.M{"$lte": now},
		},
		bson.M{
			"state":      stateClaimed,
			"claimed_at": bson.M{"$lte": now.Add(-claimTimeout)},
		},
	}}
}

// Claim atomically takes one due event, including stale claims left behind by
// a dead worker. At-least-once holds either way; receivers dedup by event id.
func (s *MongoStore) Claim(ctx context.Context, workerID string) (*EventRecord, int, error) {
	now := time.Now().UTC()
	filter := claimFilter(now)
	update := bson.M{"$set": bson.M{"state": stateClaimed, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetSort(bson.D{{Key: "created_at", Value: 1}})
	var doc eventDocument
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return &EventRecord{
		ID:        doc.ID,
		Topic:     doc.Topic,
		Key:       doc.Key,
		Payload:   doc.Payload,
		CreatedAt: doc.CreatedAt,
	}, doc.Attempts, nil
}

func (s *MongoStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"state": stateSent, "sent_at": time.Now().UTC()}})
	return err
}

func (s *MongoStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	update := bson.M{
		"$set": bson.M{"state": stateFailed, "next_attempt_at": next, "last_error": errMsg},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

var _ Store = (*MongoStore)(nil)
