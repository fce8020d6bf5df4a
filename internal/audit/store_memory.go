package audit

import (
	"context"
	"sync"

	"medledger/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.Address][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[domain.Address][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Patient] = append(s.entries[entry.Patient], entry)
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patient domain.Address) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[patient]...), nil
}
