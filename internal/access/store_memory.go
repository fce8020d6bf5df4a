package access

import (
	"context"
	"sort"
	"sync"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

type pairKey struct {
	patient  domain.Address
	provider domain.Address
}

// InMemoryStore holds grants in a map guarded by a single RWMutex. The lock
// is held only for the map operation itself, so CAS semantics per key are
// preserved without per-key locks.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[pairKey]Grant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[pairKey]Grant)}
}

func (s *InMemoryStore) Get(_ context.Context, patient, provider domain.Address) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if grant, ok := s.grants[pairKey{patient, provider}]; ok {
		return copyGrant(grant), nil
	}
	return Grant{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Put(_ context.Context, grant Grant, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{grant.Patient, grant.Provider}
	current, exists := s.grants[key]
	switch {
	case !exists && expectedVersion != 0:
		return sentinel.ErrConflict
	case exists && current.Version != expectedVersion:
		return sentinel.ErrConflict
	}
	grant.Version = expectedVersion + 1
	s.grants[key] = copyGrant(grant)
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patient domain.Address) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for key, grant := range s.grants {
		if key.patient == patient {
			out = append(out, copyGrant(grant))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *InMemoryStore) ListByProvider(_ context.Context, provider domain.Address) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for key, grant := range s.grants {
		if key.provider == provider {
			out = append(out, copyGrant(grant))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Patient < out[j].Patient })
	return out, nil
}

// copyGrant deep-copies the slices so callers cannot mutate stored state.
func copyGrant(g Grant) Grant {
	g.WrappedKey = append([]byte(nil), g.WrappedKey...)
	g.ContentRefs = append([]domain.ContentID(nil), g.ContentRefs...)
	return g
}
