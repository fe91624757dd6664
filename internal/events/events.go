// Package events records domain events in the job-queue outbox and delivers
// them to a publisher from a background worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/profilestack/internal/storage"
)

// Event types. The type doubles as the AMQP routing key.
const (
	TypeUserCreated         = "user.created"
	TypeProfileUpdated      = "profile.updated"
	TypeCollectionReplaced  = "profile.collection_replaced"
	TypeGenerationCompleted = "generation.completed"
)

// JobType is the job-queue type used for outbox entries.
const JobType = "event_publish"

// Event is a domain event about one user's data.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"userId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// New creates an event with a fresh id and the current time.
func New(eventType, userID string, data map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// JobEnqueuer abstracts the job-queue insert.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// Outbox stores events as jobs so that delivery survives restarts and
// broker outages.
type Outbox struct {
	store       JobEnqueuer
	maxAttempts int
}

// NewOutbox creates an Outbox writing to store.
func NewOutbox(store JobEnqueuer) *Outbox {
	return &Outbox{store: store, maxAttempts: 5}
}

// Emit enqueues ev for delivery. A nil Outbox discards events.
func (o *Outbox) Emit(_ context.Context, ev Event) error {
	if o == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	job := storage.Job{
		ID:          ev.ID,
		Type:        JobType,
		PayloadJSON: string(payload),
		MaxAttempts: o.maxAttempts,
	}
	if err := o.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing %s event: %w", ev.Type, err)
	}
	return nil
}
