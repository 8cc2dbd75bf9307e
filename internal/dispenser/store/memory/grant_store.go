package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/icefez/dispenser/internal/dispenser/store"
)

// GrantStore is an in-memory grant map for tests and dev environments.
type GrantStore struct {
	mu     sync.Mutex
	grants map[string]store.GrantRecord
}

func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]store.GrantRecord)}
}

func (s *GrantStore) Get(_ context.Context, identity string) (*store.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.grants[identity]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *GrantStore) Put(_ context.Context, rec store.GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[rec.Identity] = rec
	return nil
}

func (s *GrantStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, identity)
	return nil
}

func (s *GrantStore) List(_ context.Context) ([]store.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.GrantRecord, 0, len(s.grants))
	for _, rec := range s.grants {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
