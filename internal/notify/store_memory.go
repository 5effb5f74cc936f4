package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"gatepass/pkg/platform/sentinel"
)

// InMemoryOutbox keeps pending events in a slice. Used in tests and when no
// Postgres is configured.
type InMemoryOutbox struct {
	mu      sync.Mutex
	pending []OutboxEntry
	done    []OutboxEntry
}

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{}
}

func (s *InMemoryOutbox) Append(_ context.Context, entry OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, entry)
	return nil
}

func (s *InMemoryOutbox) NextBatch(_ context.Context, limit int) ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	batch := make([]OutboxEntry, limit)
	copy(batch, s.pending[:limit])
	return batch, nil
}

func (s *InMemoryOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.pending {
		if entry.ID == id {
			s.done = append(s.done, entry)
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryOutbox) MarkFailed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending[i].Attempts++
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// Published returns the delivered entries, for tests.
func (s *InMemoryOutbox) Published() []OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboxEntry, len(s.done))
	copy(out, s.done)
	return out
}

// PendingCount returns how many entries await delivery, for tests.
func (s *InMemoryOutbox) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
