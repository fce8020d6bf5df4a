package records

import (
	"context"
	"sync"

	"medledger/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Address][]ContentRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.Address][]ContentRecord)}
}

func (s *InMemoryStore) Append(_ context.Context, record ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Patient] = append(s.records[record.Patient], record)
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patient domain.Address) ([]ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ContentRecord{}, s.records[patient]...), nil
}
