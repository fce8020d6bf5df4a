package registry

import (
	"context"
	"sort"
	"sync"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// InMemoryStore keeps the initial implementation lightweight and testable. It
// intentionally favors clarity over performance.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[domain.Address]Identity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[domain.Address]Identity)}
}

func (s *InMemoryStore) Create(_ context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Address]; ok {
		return sentinel.ErrConflict
	}
	s.identities[identity.Address] = identity
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, address domain.Address) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identity, ok := s.identities[address]; ok {
		return identity, nil
	}
	return Identity{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Address]; !ok {
		return sentinel.ErrNotFound
	}
	s.identities[identity.Address] = identity
	return nil
}

func (s *InMemoryStore) ListProviders(_ context.Context) ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Identity
	for _, identity := range s.identities {
		if identity.Role == RoleProvider {
			out = append(out, identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
