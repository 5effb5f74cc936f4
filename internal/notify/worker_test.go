package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type fakeProducer struct {
	mu       sync.Mutex
	produced []Event
	fail     map[EventType]bool
}

func (p *fakeProducer) Produce(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[event.Type] {
		return errors.New("broker unavailable")
	}
	p.produced = append(p.produced, event)
	return nil
}

func (p *fakeProducer) Close() {}

type WorkerSuite struct {
	suite.Suite
	ctx      context.Context
	outbox   *InMemoryOutbox
	producer *fakeProducer
	pub      *OutboxPublisher
	worker   *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.outbox = NewInMemoryOutbox()
	s.producer = &fakeProducer{fail: make(map[EventType]bool)}
	s.pub = NewOutboxPublisher(s.outbox, logger)
	s.worker = NewWorker(s.outbox, s.producer, logger)
}

func (s *WorkerSuite) TestPublishAndDrain() {
	s.pub.Publish(s.ctx, Event{Type: EventRequestCreated, RequestID: "r1"})
	s.pub.Publish(s.ctx, Event{Type: EventRequestReady, RequestID: "r1"})
	s.Equal(2, s.outbox.PendingCount())

	failed := s.worker.DrainOnce(s.ctx)
	s.False(failed)

	s.Zero(s.outbox.PendingCount())
	s.Len(s.outbox.Published(), 2)
	s.Require().Len(s.producer.produced, 2)
	// Insertion order survives the drain.
	s.Equal(EventRequestCreated, s.producer.produced[0].Type)
	s.Equal(EventRequestReady, s.producer.produced[1].Type)
	// The publisher stamps id and timestamp.
	s.NotZero(s.producer.produced[0].ID)
	s.False(s.producer.produced[0].OccurredAt.IsZero())
}

func (s *WorkerSuite) TestFailedDeliveryStaysQueued() {
	s.producer.fail[EventRejected] = true
	s.pub.Publish(s.ctx, Event{Type: EventRejected, RequestID: "r1"})
	s.pub.Publish(s.ctx, Event{Type: EventCancelled, RequestID: "r2"})

	failed := s.worker.DrainOnce(s.ctx)
	s.True(failed)

	// The good event went out; the bad one waits with its attempt counted.
	s.Len(s.producer.produced, 1)
	s.Equal(1, s.outbox.PendingCount())
	batch, err := s.outbox.NextBatch(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(EventRejected, batch[0].Event.Type)
	s.Equal(1, batch[0].Attempts)

	// Broker recovers: the retry drains it.
	s.producer.fail[EventRejected] = false
	failed = s.worker.DrainOnce(s.ctx)
	s.False(failed)
	s.Zero(s.outbox.PendingCount())
}

func (s *WorkerSuite) TestEmptyOutbox() {
	s.False(s.worker.DrainOnce(s.ctx))
	s.Empty(s.producer.produced)
}
