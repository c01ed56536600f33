package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker drains the outbox to the broker. Publishing is at-least-once: an
// event marked failed (or a worker crash mid-claim resolved by MarkFailed)
// is retried, and consumers absorb the duplicate.
type Worker struct {
	Store    Store
	Producer Producer
	Interval time.Duration
	ID       string
	Backoff  []time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Drain everything due before sleeping again.
			for {
				more, err := w.processOnce(ctx)
				if err != nil {
					return err
				}
				if !more {
					break
				}
			}
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	rec, attempts, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || rec == nil {
		return false, err
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := w.Producer.Publish(ctx, rec.Topic, rec.Key, rec.Payload, headers); err != nil {
		if markErr := w.Store.MarkFailed(ctx, rec.ID, w.nextRetry(attempts), err.Error()); markErr != nil {
			return false, markErr
		}
		return true, nil
	}
	if err := w.Store.MarkSent(ctx, rec.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}
