package policy

import (
	"context"
	"sync"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

type policyKey struct {
	sc domain.StudentCategory
	pc domain.PassCategory
}

// InMemoryStore keeps policy rows in a map for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[policyKey]Policy
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{policies: make(map[policyKey]Policy)}
}

func (s *InMemoryStore) Find(_ context.Context, sc domain.StudentCategory, pc domain.PassCategory) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[policyKey{sc, pc}]; ok {
		return p, nil
	}
	return Policy{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Upsert(_ context.Context, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey{p.StudentCategory, p.PassCategory}] = p
	return nil
}

// InMemoryCalendar keeps calendar exceptions in a map keyed by date.
type InMemoryCalendar struct {
	mu    sync.RWMutex
	dates map[string]CalendarException
}

func NewInMemoryCalendar() *InMemoryCalendar {
	return &InMemoryCalendar{dates: make(map[string]CalendarException)}
}

func (s *InMemoryCalendar) IsException(_ context.Context, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dates[date.Format("2006-01-02")]
	return ok, nil
}

func (s *InMemoryCalendar) AddException(_ context.Context, ex CalendarException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dates[ex.Date.Format("2006-01-02")] = ex
	return nil
}
