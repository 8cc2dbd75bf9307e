package memory

import (
	"context"
	"sync"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/store"
)

// HistoryStore is an in-memory append-only distribution log for tests and
// dev environments.
type HistoryStore struct {
	mu     sync.Mutex
	recs   []store.HistoryRecord
	nextID int64
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{nextID: 1}
}

func (s *HistoryStore) Append(_ context.Context, rec store.HistoryRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.recs = append(s.recs, rec)
	return rec.ID, nil
}

func (s *HistoryStore) Recent(_ context.Context, limit int) ([]store.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.HistoryRecord
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

func (s *HistoryStore) Window(_ context.Context, since time.Time) ([]store.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.HistoryRecord
	for _, rec := range s.recs {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *HistoryStore) RemoveByIDs(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.recs[:0]
	for _, rec := range s.recs {
		if _, ok := drop[rec.ID]; !ok {
			kept = append(kept, rec)
		}
	}
	s.recs = kept
	return nil
}

func (s *HistoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs), nil
}

// Records returns a copy of all records in insertion order.  Test-only helper.
func (s *HistoryStore) Records() []store.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.HistoryRecord, len(s.recs))
	copy(out, s.recs)
	return out
}
