package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemoryStore mirrors the Postgres store's guarded-update semantics for
// tests and local runs. Mutations hold the lock for the whole check-and-set
// so the conflict behavior matches a conditional UPDATE.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.PassID]PassRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.PassID]PassRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, req PassRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.StudentID == req.StudentID && existing.Open() {
			return sentinel.ErrDuplicate
		}
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.PassID) (PassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if req, ok := s.requests[id]; ok {
		return req, nil
	}
	return PassRequest{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindOpenByStudent(_ context.Context, studentID domain.StudentID) (PassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.StudentID == studentID && req.Open() {
			return req, nil
		}
	}
	return PassRequest{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByTokenDigest(_ context.Context, digest string) (PassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if digest == "" {
		return PassRequest{}, sentinel.ErrNotFound
	}
	for _, req := range s.requests {
		if req.TokenDigest == digest {
			return req, nil
		}
	}
	return PassRequest{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Transition(_ context.Context, id domain.PassID, from, to Status, at time.Time) error {
	return s.transition(id, from, to, "", false, at)
}

func (s *InMemoryStore) TransitionWithToken(_ context.Context, id domain.PassID, from, to Status, tokenDigest string, at time.Time) error {
	return s.transition(id, from, to, tokenDigest, true, at)
}

func (s *InMemoryStore) transition(id domain.PassID, from, to Status, tokenDigest string, setToken bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != from {
		return sentinel.ErrConflict
	}
	req.Status = to
	if setToken {
		req.TokenDigest = tokenDigest
	}
	req.UpdatedAt = at
	s.requests[id] = req
	return nil
}

func (s *InMemoryStore) UpdateDetails(_ context.Context, id domain.PassID, expected Status, upd DetailsUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != expected {
		return sentinel.ErrConflict
	}
	req.Category = upd.Category
	req.Reason = upd.Reason
	req.DepartureAt = upd.DepartureAt
	req.ReturnAt = upd.ReturnAt
	req.UpdatedAt = at
	s.requests[id] = req
	return nil
}

func (s *InMemoryStore) SetForwarded(_ context.Context, id domain.PassID, expected Status, to domain.StaffID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != expected {
		return sentinel.ErrConflict
	}
	req.ForwardedTo = &to
	req.UpdatedAt = at
	s.requests[id] = req
	return nil
}

func (s *InMemoryStore) ListByStudent(_ context.Context, studentID domain.StudentID) ([]PassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PassRequest
	for _, req := range s.requests {
		if req.StudentID == studentID {
			out = append(out, req)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, statuses ...Status) ([]PassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []PassRequest
	for _, req := range s.requests {
		if wanted[req.Status] {
			out = append(out, req)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) CountCreatedBetween(_ context.Context, studentID domain.StudentID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, req := range s.requests {
		if req.StudentID == studentID && !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ExpireReturnLapsed(_ context.Context, now time.Time) ([]PassRequest, error) {
	return s.expire(func(req PassRequest) bool {
		switch req.Status {
		case StatusPending, StatusApprovedStage1, StatusApprovedStage2, StatusApprovedFinal:
			return req.ReturnAt.Before(now)
		}
		return false
	}, now)
}

func (s *InMemoryStore) ExpireNeverExited(_ context.Context, cutoff, now time.Time) ([]PassRequest, error) {
	return s.expire(func(req PassRequest) bool {
		switch req.Status {
		case StatusApprovedStage1, StatusApprovedStage2, StatusApprovedFinal:
			return req.DepartureAt.Before(cutoff)
		}
		return false
	}, now)
}

func (s *InMemoryStore) expire(match func(PassRequest) bool, now time.Time) ([]PassRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []PassRequest
	for id, req := range s.requests {
		if match(req) {
			req.Status = StatusExpired
			req.UpdatedAt = now
			s.requests[id] = req
			expired = append(expired, req)
		}
	}
	sortByCreation(expired)
	return expired, nil
}

func sortByCreation(reqs []PassRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
}
