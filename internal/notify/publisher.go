package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher is the port the domain services publish through. Publishing is
// fire-and-forget relative to state transitions: the transition commits
// first, and a publish failure is logged, never propagated.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// OutboxStore buffers events between the synchronous transition path and the
// background worker that drains to the broker.
type OutboxStore interface {
	Append(ctx context.Context, entry OutboxEntry) error
	// NextBatch returns up to limit unpublished entries in insertion order.
	NextBatch(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// OutboxPublisher appends to the outbox and returns; the worker owns delivery.
type OutboxPublisher struct {
	store  OutboxStore
	logger *slog.Logger
}

func NewOutboxPublisher(store OutboxStore, logger *slog.Logger) *OutboxPublisher {
	return &OutboxPublisher{store: store, logger: logger}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	entry := OutboxEntry{ID: event.ID, Event: event, CreatedAt: time.Now()}
	if err := p.store.Append(ctx, entry); err != nil {
		// The transition already committed; losing a notification is
		// preferable to failing the request.
		p.logger.ErrorContext(ctx, "failed to enqueue notification",
			"event_type", event.Type,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}
