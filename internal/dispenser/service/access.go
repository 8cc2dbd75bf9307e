package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/store"
)

// ErrAlreadyOwner is returned when granting access to an owner; owners
// always outrank grants, so the grant would never be consulted.
var ErrAlreadyOwner = errors.New("identity is already an owner")

// Level is the closed set of access outcomes: owners outrank grantees, and
// everyone else gets nothing.
type Level int

const (
	LevelNone Level = iota
	LevelGranted
	LevelOwner
)

// Decision is the result of one authorization check.  Until is set only for
// time-limited grants.
type Decision struct {
	Level Level
	Until *time.Time
}

func (d Decision) Authorized() bool { return d.Level != LevelNone }

// AccessService answers "may this identity self-serve?" against the fixed
// owner set and the durable grant store.  Expired grants are evicted the
// first time they are observed expired, so a lookup can mutate the store;
// the mutex keeps those read-evict sequences from interleaving.
type AccessService struct {
	mu     sync.Mutex
	owners map[string]struct{}
	grants store.GrantStore
	now    func() time.Time
}

func NewAccessService(owners []string, grants store.GrantStore, now func() time.Time) *AccessService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	set := make(map[string]struct{}, len(owners))
	for _, o := range owners {
		o = strings.TrimSpace(o)
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return &AccessService{owners: set, grants: grants, now: now}
}

func (s *AccessService) IsOwner(identity string) bool {
	_, ok := s.owners[identity]
	return ok
}

// Owners returns the fixed owner identity set.
func (s *AccessService) Owners() []string {
	out := make([]string, 0, len(s.owners))
	for o := range s.owners {
		out = append(out, o)
	}
	return out
}

// Authorize decides the access level for identity.  An expired grant is
// deleted on first observation and reported as LevelNone.
func (s *AccessService) Authorize(ctx context.Context, identity string) (Decision, error) {
	if s.IsOwner(identity) {
		return Decision{Level: LevelOwner}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.grants.Get(ctx, identity)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize %s: %w", identity, err)
	}
	if rec == nil {
		return Decision{Level: LevelNone}, nil
	}
	if rec.Expired(s.now()) {
		if err := s.grants.Delete(ctx, identity); err != nil {
			return Decision{}, fmt.Errorf("evict expired grant %s: %w", identity, err)
		}
		return Decision{Level: LevelNone}, nil
	}
	return Decision{Level: LevelGranted, Until: rec.ExpiresAt}, nil
}

// Grant stores (or replaces) a grant for identity.  ttl == nil means no
// expiry.  Granting to an owner fails with ErrAlreadyOwner.
func (s *AccessService) Grant(ctx context.Context, identity, label string, ttl *time.Duration) (store.GrantRecord, error) {
	if s.IsOwner(identity) {
		return store.GrantRecord{}, ErrAlreadyOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := store.GrantRecord{
		Identity:  identity,
		Label:     label,
		CreatedAt: now,
	}
	if ttl != nil {
		t := now.Add(*ttl)
		rec.ExpiresAt = &t
	}
	if err := s.grants.Put(ctx, rec); err != nil {
		return store.GrantRecord{}, fmt.Errorf("grant %s: %w", identity, err)
	}
	return rec, nil
}

// Revoke removes identity's grant, reporting whether a live grant existed.
// Revoking an absent or already-expired grant returns false; the expired
// grant is still evicted.
func (s *AccessService) Revoke(ctx context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.grants.Get(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("revoke %s: %w", identity, err)
	}
	if rec == nil {
		return false, nil
	}
	expired := rec.Expired(s.now())
	if err := s.grants.Delete(ctx, identity); err != nil {
		return false, fmt.Errorf("revoke %s: %w", identity, err)
	}
	return !expired, nil
}

// List returns the current live grants, evicting any that expired since the
// last look so stale entries never reach a display surface.
func (s *AccessService) List(ctx context.Context) ([]store.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.grants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	now := s.now()
	live := all[:0]
	for _, rec := range all {
		if rec.Expired(now) {
			if err := s.grants.Delete(ctx, rec.Identity); err != nil {
				return nil, fmt.Errorf("evict expired grant %s: %w", rec.Identity, err)
			}
			continue
		}
		live = append(live, rec)
	}
	return live, nil
}
