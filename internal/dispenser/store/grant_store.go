package store

import (
	"context"
	"time"
)

// GrantRecord is one delegated authorization: Identity may use self-service
// generation until ExpiresAt (nil means no expiry).  Label is the human-readable
// name captured at grant time, kept purely for display.
type GrantRecord struct {
	Identity  string
	Label     string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Expired reports whether the grant has an expiry in the past relative to now.
func (g GrantRecord) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// GrantStore persists the identity → grant mapping.  Expiry is not enforced
// here; the access service evicts expired grants lazily on read.
type GrantStore interface {
	// Get returns the grant for identity, or nil if none exists.
	Get(ctx context.Context, identity string) (*GrantRecord, error)

	// Put stores the grant, replacing any prior grant for the same identity.
	Put(ctx context.Context, rec GrantRecord) error

	// Delete removes the grant for identity.  Deleting an absent grant is
	// not an error.
	Delete(ctx context.Context, identity string) error

	// List returns all stored grants, including any not yet lazily evicted,
	// ordered by creation time.
	List(ctx context.Context) ([]GrantRecord, error)
}
