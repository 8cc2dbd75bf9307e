package store

import (
	"context"
	"time"
)

// HistoryRecord captures a single distributed credential for the audit log.
// CredentialID is the non-secret identifier part only (the text before the
// first ":"); the full string stays in the ledger until pruned, keyed by
// LedgerID.  DistributedBy is empty for self-service generation.
type HistoryRecord struct {
	ID             int64
	BatchID        string
	RecipientID    string
	RecipientLabel string
	CredentialID   string
	DistributedBy  string
	LedgerID       int64
	CreatedAt      time.Time
}

// HistoryStore persists distribution records as an append-only audit log.
// Records are removed only by restock, keyed by the unique record ID assigned
// at append time — never by timestamp, which can collide under rapid
// distributions.
type HistoryStore interface {
	// Append stores one record and returns its assigned ID.
	Append(ctx context.Context, rec HistoryRecord) (int64, error)

	// Recent returns the most recently appended records, newest first.
	Recent(ctx context.Context, limit int) ([]HistoryRecord, error)

	// Window returns all records with CreatedAt >= since, oldest first.
	Window(ctx context.Context, since time.Time) ([]HistoryRecord, error)

	// RemoveByIDs deletes exactly the records whose ID is in ids.
	RemoveByIDs(ctx context.Context, ids []int64) error

	// Count reports the total number of records.
	Count(ctx context.Context) (int, error)
}
