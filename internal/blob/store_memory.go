package blob

import (
	"context"
	"sync"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[domain.ContentID][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[domain.ContentID][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (domain.ContentID, error) {
	id := ContentAddress(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		s.blobs[id] = append([]byte(nil), data...)
	}
	return id, nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.ContentID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.blobs[id]; ok {
		return append([]byte(nil), data...), nil
	}
	return nil, sentinel.ErrNotFound
}
