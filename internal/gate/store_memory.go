package gate

import (
	"context"
	"sync"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

type InMemoryLogStore struct {
	mu   sync.RWMutex
	logs map[domain.PassID][]Log
}

func NewInMemoryLogStore() *InMemoryLogStore {
	return &InMemoryLogStore{logs: make(map[domain.PassID][]Log)}
}

func (s *InMemoryLogStore) Append(_ context.Context, log Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.RequestID] = append(s.logs[log.RequestID], log)
	return nil
}

func (s *InMemoryLogStore) Latest(_ context.Context, requestID domain.PassID) (Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.logs[requestID]
	if len(logs) == 0 {
		return Log{}, sentinel.ErrNotFound
	}
	return logs[len(logs)-1], nil
}

func (s *InMemoryLogStore) ListByRequest(_ context.Context, requestID domain.PassID) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.logs[requestID]
	out := make([]Log, len(logs))
	copy(out, logs)
	return out, nil
}
