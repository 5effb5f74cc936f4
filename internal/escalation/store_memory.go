package escalation

import (
	"context"
	"sync"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemoryLeaveStore keeps leave records in a map for tests and local runs.
type InMemoryLeaveStore struct {
	mu      sync.RWMutex
	records map[domain.StaffID][]LeaveRecord
}

func NewInMemoryLeaveStore() *InMemoryLeaveStore {
	return &InMemoryLeaveStore{records: make(map[domain.StaffID][]LeaveRecord)}
}

func (s *InMemoryLeaveStore) OnLeave(_ context.Context, actorID domain.StaffID, t time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records[actorID] {
		if rec.Covers(t) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryLeaveStore) Record(_ context.Context, rec LeaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ActorID] = append(s.records[rec.ActorID], rec)
	return nil
}

// InMemoryDelegationStore keeps at most one active grant per grantor.
type InMemoryDelegationStore struct {
	mu     sync.RWMutex
	grants map[domain.StaffID][]DelegationGrant
}

func NewInMemoryDelegationStore() *InMemoryDelegationStore {
	return &InMemoryDelegationStore{grants: make(map[domain.StaffID][]DelegationGrant)}
}

func (s *InMemoryDelegationStore) Activate(_ context.Context, grant DelegationGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.grants[grant.GrantorID]
	for i := range existing {
		existing[i].Active = false
	}
	grant.Active = true
	s.grants[grant.GrantorID] = append(existing, grant)
	return nil
}

func (s *InMemoryDelegationStore) ActiveGrant(_ context.Context, grantorID domain.StaffID, t time.Time) (DelegationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants[grantorID] {
		if g.InEffect(t) {
			return g, nil
		}
	}
	return DelegationGrant{}, sentinel.ErrNotFound
}

func (s *InMemoryDelegationStore) ActiveGrantFor(_ context.Context, delegateID domain.StaffID, t time.Time) (DelegationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, grants := range s.grants {
		for _, g := range grants {
			if g.DelegateID == delegateID && g.InEffect(t) {
				return g, nil
			}
		}
	}
	return DelegationGrant{}, sentinel.ErrNotFound
}
