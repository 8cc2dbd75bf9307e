package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/store"
)

type ledgerRow struct {
	id         int64
	credential string
	issued     bool
	issuedAt   time.Time
}

// LedgerStore is an in-memory FIFO ledger for tests and dev environments.
// Rows keep their slice order; issued rows stay in place until pruned so
// Restore can put them back at the front.
type LedgerStore struct {
	mu     sync.Mutex
	rows   []ledgerRow
	nextID int64
}

func NewLedgerStore(credentials []string) *LedgerStore {
	s := &LedgerStore{nextID: 1}
	for _, c := range credentials {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		s.rows = append(s.rows, ledgerRow{id: s.nextID, credential: c})
		s.nextID++
	}
	return s
}

func (s *LedgerStore) Take(_ context.Context, n int, now time.Time) ([]store.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := s.availableLocked()
	if available == 0 {
		return nil, store.ErrEmptyStock
	}
	if available < n {
		return nil, &store.InsufficientStockError{Available: available}
	}

	out := make([]store.LedgerEntry, 0, n)
	for i := range s.rows {
		if len(out) == n {
			break
		}
		if s.rows[i].issued {
			continue
		}
		s.rows[i].issued = true
		s.rows[i].issuedAt = now
		out = append(out, store.LedgerEntry{ID: s.rows[i].id, Credential: s.rows[i].credential})
	}
	return out, nil
}

func (s *LedgerStore) Restore(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Collect the issued rows being restored, in the caller's order, then
	// rebuild the slice with them at the front.
	restored := make([]ledgerRow, 0, len(ids))
	for _, id := range ids {
		for i := range s.rows {
			if s.rows[i].id == id && s.rows[i].issued {
				row := s.rows[i]
				row.issued = false
				row.issuedAt = time.Time{}
				restored = append(restored, row)
				s.rows = append(s.rows[:i], s.rows[i+1:]...)
				break
			}
		}
	}
	s.rows = append(restored, s.rows...)
	return len(restored), nil
}

func (s *LedgerStore) Append(_ context.Context, credentials []string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range credentials {
		s.rows = append(s.rows, ledgerRow{id: s.nextID, credential: c})
		s.nextID++
	}
	return nil
}

func (s *LedgerStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableLocked(), nil
}

func (s *LedgerStore) PruneIssuedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []ledgerRow
	var deleted int64
	for _, r := range s.rows {
		if r.issued && r.issuedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return deleted, nil
}

// Credentials returns the available credential strings in FIFO order.
// Test-only helper.
func (s *LedgerStore) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.rows {
		if !r.issued {
			out = append(out, r.credential)
		}
	}
	return out
}

func (s *LedgerStore) availableLocked() int {
	n := 0
	for _, r := range s.rows {
		if !r.issued {
			n++
		}
	}
	return n
}
