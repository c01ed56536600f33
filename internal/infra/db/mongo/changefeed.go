package mongo

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusmarket/internal/infra/messaging"
)

// ChangeFeed tails the messages collection change stream and republishes
// inserts into the live hub. It is the change-notification collaborator for
// deployments where sends can happen on other instances.
//
// No replay is attempted after an outage: the stream is reopened and messages
// inserted during the gap are recovered by each session's next full fetch.
type ChangeFeed struct {
	DB      *mongo.Database
	Hub     *messaging.Hub
	Logger  *slog.Logger
	Backoff time.Duration
}

// Run blocks, watching for inserts until ctx is done. Transport errors trigger
// reconnection after a backoff.
func (f *ChangeFeed) Run(ctx context.Context) error {
	backoff := f.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		if err := f.watch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if f.Logger != nil {
				f.Logger.Warn("change stream interrupted, reconnecting", "error", err, "backoff", backoff)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (f *ChangeFeed) watch(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"operationType": "insert"}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := f.DB.Collection("messages").Watch(ctx, pipeline, opts)
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	if f.Logger != nil {
		f.Logger.Info("change stream attached", "collection", "messages")
	}
	for stream.Next(ctx) {
		var event struct {
			FullDocument messageDocument `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			if f.Logger != nil {
				f.Logger.Warn("change event decode failed", "error", err)
			}
			continue
		}
		f.Hub.Publish(event.FullDocument.toMessage())
	}
	return stream.Err()
}
