package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyStock is returned by Take when no entries are available at all.
	ErrEmptyStock = errors.New("ledger is empty")
)

// InsufficientStockError is returned by Take when some entries are available
// but fewer than requested.  It is distinct from ErrEmptyStock so callers can
// tell the user how many they could still get.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d entries in stock", e.Available)
}

// LedgerEntry is one credential string held by the ledger.  ID is the stable
// row identity used to correlate an issued entry with its history record and
// to restore it on restock or rollback.
type LedgerEntry struct {
	ID         int64
	Credential string
}

// LedgerStore is the durable FIFO of distributable credential strings.
//
// Taken entries are not deleted; they are marked issued and retained so a
// later Restore can put the original string back at the front.  A janitor
// eventually hard-deletes issued rows past the restock retention.
type LedgerStore interface {
	// Take atomically removes the first n available entries in FIFO order.
	// It fails with ErrEmptyStock when nothing is available and with
	// *InsufficientStockError when 0 < available < n; in both cases the
	// ledger is left unchanged.
	Take(ctx context.Context, n int, now time.Time) ([]LedgerEntry, error)

	// Restore puts previously taken entries back at the FRONT of the
	// ledger, preserving the relative order of ids.  Entries that are no
	// longer retained (already pruned) are skipped; the count of entries
	// actually restored is returned.
	Restore(ctx context.Context, ids []int64) (int, error)

	// Append adds credentials to the back of the ledger.
	Append(ctx context.Context, credentials []string, now time.Time) error

	// Count reports how many entries are currently available.
	Count(ctx context.Context) (int, error)

	// PruneIssuedBefore hard-deletes issued entries taken before cutoff,
	// returning the number of rows removed.  Available entries are never
	// touched.
	PruneIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
