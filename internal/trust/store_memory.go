package trust

import (
	"context"
	"sync"
	"time"

	"gatepass/pkg/domain"
)

// InMemoryStore keeps scores and adjustments in maps for tests and local runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	scores      map[domain.StudentID]int
	adjustments map[domain.StudentID][]Adjustment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scores:      make(map[domain.StudentID]int),
		adjustments: make(map[domain.StudentID][]Adjustment),
	}
}

func (s *InMemoryStore) Score(_ context.Context, actorID domain.StudentID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if score, ok := s.scores[actorID]; ok {
		return score, nil
	}
	return DefaultScore, nil
}

func (s *InMemoryStore) Apply(_ context.Context, adj Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[adj.ActorID] = adj.NewScore
	s.adjustments[adj.ActorID] = append(s.adjustments[adj.ActorID], adj)
	return nil
}

func (s *InMemoryStore) History(_ context.Context, actorID domain.StudentID) ([]Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]Adjustment, len(s.adjustments[actorID]))
	copy(history, s.adjustments[actorID])
	return history, nil
}

// InMemoryCooldown keeps cancellation timestamps per actor.
type InMemoryCooldown struct {
	mu            sync.RWMutex
	cancellations map[domain.StudentID][]time.Time
	overrides     map[domain.StudentID]time.Time
}

func NewInMemoryCooldown() *InMemoryCooldown {
	return &InMemoryCooldown{
		cancellations: make(map[domain.StudentID][]time.Time),
		overrides:     make(map[domain.StudentID]time.Time),
	}
}

func (s *InMemoryCooldown) RecordCancellation(_ context.Context, actorID domain.StudentID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancellations[actorID] = append(s.cancellations[actorID], at)
	return nil
}

func (s *InMemoryCooldown) CountSince(_ context.Context, actorID domain.StudentID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, at := range s.cancellations[actorID] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryCooldown) Override(_ context.Context, actorID domain.StudentID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[actorID], nil
}

func (s *InMemoryCooldown) SetOverride(_ context.Context, actorID domain.StudentID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[actorID] = at
	return nil
}
