package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubStore struct {
	mu      sync.Mutex
	pending []EventRecord
	sent    []string
	failed  []string
}

func (s *stubStore) Add(ctx context.Context, record EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, record)
	return nil
}

func (s *stubStore) Claim(ctx context.Context, workerID string) (*EventRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, 0, nil
	}
	rec := s.pending[0]
	s.pending = s.pending[1:]
	return &rec, 0, nil
}

func (s *stubStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *stubStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

type stubProducer struct {
	mu        sync.Mutex
	published []string
	fail      bool
}

func (p *stubProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.published = append(p.published, topic+"/"+key)
	return nil
}

func TestWorkerRequiresDependencies(t *testing.T) {
	w := &Worker{}
	if err := w.Run(context.Background()); !errors.Is(err, ErrWorkerNotConfigured) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestWorkerPublishesAndMarksSent(t *testing.T) {
	store := &stubStore{}
	producer := &stubProducer{}
	_ = store.Add(context.Background(), EventRecord{ID: "e1", Topic: "chat.message.inserted", Key: "l1", Payload: []byte("{}")})
	_ = store.Add(context.Background(), EventRecord{ID: "e2", Topic: "chat.message.inserted", Key: "l1", Payload: []byte("{}")})

	w := &Worker{Store: store, Producer: producer, Interval: 5 * time.Millisecond, ID: "w1"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		sent := len(store.sent)
		store.mu.Unlock()
		if sent == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("events never drained")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(producer.published) != 2 || producer.published[0] != "chat.message.inserted/l1" {
		t.Errorf("published = %v", producer.published)
	}
}

func TestWorkerMarksFailedOnPublishError(t *testing.T) {
	store := &stubStore{}
	producer := &stubProducer{fail: true}
	_ = store.Add(context.Background(), EventRecord{ID: "e1", Topic: "chat.message.inserted", Key: "l1", Payload: []byte("{}")})

	w := &Worker{Store: store, Producer: producer, ID: "w1"}
	more, err := w.processOnce(context.Background())
	if err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if !more {
		t.Error("a failed event still counts as processed work")
	}
	if len(store.failed) != 1 || store.failed[0] != "e1" {
		t.Errorf("failed marks = %v", store.failed)
	}
	if len(store.sent) != 0 {
		t.Errorf("sent marks = %v", store.sent)
	}
}

func TestWorkerRetrySchedule(t *testing.T) {
	w := &Worker{Backoff: []time.Duration{time.Second, time.Minute}}
	now := time.Now()

	first := w.nextRetry(0)
	if first.Before(now.Add(time.Second - 100*time.Millisecond)) {
		t.Error("first retry sooner than configured backoff")
	}
	// Attempts beyond the schedule reuse the last step.
	last := w.nextRetry(10)
	if last.Before(now.Add(time.Minute - 100*time.Millisecond)) {
		t.Error("overflow attempt ignored terminal backoff")
	}
}
