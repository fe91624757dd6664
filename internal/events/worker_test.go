package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/profilestack/internal/metrics"
	"github.com/kalambet/profilestack/internal/storage"
)

type mockPublisher struct {
	mu        sync.Mutex
	published []Event
	publishFn func(ev Event) error
}

func (m *mockPublisher) Publish(_ context.Context, ev Event) error {
	if m.publishFn != nil {
		if err := m.publishFn(ev); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ev)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOutboxEmit(t *testing.T) {
	store := openTestStore(t)
	outbox := NewOutbox(store)

	ev := New(TypeUserCreated, "u1", map[string]any{"email": "ada@example.com"})
	if err := outbox.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	job, err := store.GetJob(ev.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != JobType || job.Status != "pending" || job.MaxAttempts != 5 {
		t.Errorf("unexpected job: %+v", job)
	}
	var decoded Event
	if err := json.Unmarshal([]byte(job.PayloadJSON), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != TypeUserCreated || decoded.UserID != "u1" {
		t.Errorf("decoded event = %+v", decoded)
	}
}

func TestNilOutboxDiscards(t *testing.T) {
	var o *Outbox
	if err := o.Emit(context.Background(), New(TypeProfileUpdated, "u1", nil)); err != nil {
		t.Errorf("nil outbox Emit = %v", err)
	}
}

func TestWorker_DeliversEvent(t *testing.T) {
	store := openTestStore(t)
	pub := &mockPublisher{}
	m := metrics.New()
	w := NewWorker(store, pub, m, 10*time.Millisecond)

	ev := New(TypeCollectionReplaced, "u1", map[string]any{"kind": "skills", "count": 1})
	if err := NewOutbox(store).Emit(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}
	if len(pub.published) != 1 || pub.published[0].ID != ev.ID {
		t.Fatalf("published = %+v", pub.published)
	}

	job, _ := store.GetJob(ev.ID)
	if job.Status != "completed" {
		t.Errorf("job status = %q, want completed", job.Status)
	}

	done, err = w.RunOnce(context.Background())
	if err != nil || done {
		t.Errorf("second RunOnce = %v, %v; want false, nil", done, err)
	}
}

func TestWorker_FailedPublishIsRetried(t *testing.T) {
	store := openTestStore(t)
	pub := &mockPublisher{publishFn: func(Event) error { return errors.New("broker down") }}
	w := NewWorker(store, pub, nil, 10*time.Millisecond)

	ev := New(TypeGenerationCompleted, "u1", nil)
	if err := NewOutbox(store).Emit(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}

	job, _ := store.GetJob(ev.ID)
	if job.Status != "pending" || job.Attempts != 1 || job.LastError != "broker down" {
		t.Errorf("unexpected job after failure: %+v", job)
	}

	// Backoff keeps the job out of reach for now.
	done, err = w.RunOnce(context.Background())
	if err != nil || done {
		t.Errorf("RunOnce during backoff = %v, %v; want false, nil", done, err)
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockPublisher{}, nil, 0)

	if err := store.EnqueueJob(storage.Job{ID: "bad", Type: JobType, PayloadJSON: "{not json", MaxAttempts: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	job, _ := store.GetJob("bad")
	if job.Status != "failed" {
		t.Errorf("status = %q, want failed", job.Status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockPublisher{}, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLogPublisher(t *testing.T) {
	var p LogPublisher
	if err := p.Publish(context.Background(), New(TypeUserCreated, "u1", nil)); err != nil {
		t.Errorf("Publish = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
