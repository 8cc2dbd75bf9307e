package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a handful of throwaway credentials so /generate has
// something to hand out on a fresh dev database.  It is a no-op when the
// ledger already has rows.
func SeedDev(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger;`).Scan(&n); err != nil {
		return fmt.Errorf("seed count: %w", err)
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC().UnixMilli()
	seed := []string{
		"dev-alpha@example.com:hunter2",
		"dev-bravo@example.com:hunter2",
		"dev-charlie@example.com:hunter2",
	}
	for i, cred := range seed {
		if _, err := db.ExecContext(ctx, `
INSERT INTO ledger(credential, position, status, added_at_ms)
VALUES (?, ?, 'available', ?);`, cred, i+1, now); err != nil {
			return fmt.Errorf("seed ledger: %w", err)
		}
	}
	return nil
}
