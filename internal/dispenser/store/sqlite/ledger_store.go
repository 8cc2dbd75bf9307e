package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/icefez/dispenser/internal/db"
	"github.com/icefez/dispenser/internal/dispenser/store"
)

type LedgerStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewLedgerStore(db *sql.DB, writer *dbpkg.Writer) *LedgerStore {
	return &LedgerStore{db: db, writer: writer}
}

// Take runs the whole check-and-mark as one transaction on the writer, so
// two concurrent takes can never both see the same front entry.
func (s *LedgerStore) Take(ctx context.Context, n int, now time.Time) ([]store.LedgerEntry, error) {
	if n < 1 {
		return nil, fmt.Errorf("Take: n must be positive, got %d", n)
	}
	nowMs := now.UTC().UnixMilli()

	var taken []store.LedgerEntry
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var available int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM ledger WHERE status = 'available';
`).Scan(&available); err != nil {
			return fmt.Errorf("Take count: %w", err)
		}
		if available == 0 {
			return store.ErrEmptyStock
		}
		if available < n {
			return &store.InsufficientStockError{Available: available}
		}

		rows, err := tx.QueryContext(ctx, `
SELECT id, credential FROM ledger
WHERE status = 'available'
ORDER BY position
LIMIT ?;
`, n)
		if err != nil {
			return fmt.Errorf("Take select: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e store.LedgerEntry
			if err := rows.Scan(&e.ID, &e.Credential); err != nil {
				return fmt.Errorf("Take scan: %w", err)
			}
			taken = append(taken, e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("Take rows: %w", err)
		}

		for _, e := range taken {
			if _, err := tx.ExecContext(ctx, `
UPDATE ledger SET status = 'issued', issued_at_ms = ? WHERE id = ?;
`, nowMs, e.ID); err != nil {
				return fmt.Errorf("Take mark issued: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// Restore moves issued rows back to available, placing them in front of all
// current stock while keeping the relative order of ids.  Rows already
// pruned (or never issued) are skipped.
func (s *LedgerStore) Restore(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	restored := 0
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var minPos int64
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MIN(position), 0) FROM ledger;
`).Scan(&minPos); err != nil {
			return fmt.Errorf("Restore min position: %w", err)
		}

		base := minPos - int64(len(ids))
		for i, id := range ids {
			res, err := tx.ExecContext(ctx, `
UPDATE ledger
SET status = 'available', position = ?, issued_at_ms = NULL
WHERE id = ? AND status = 'issued';
`, base+int64(i), id)
			if err != nil {
				return fmt.Errorf("Restore update id=%d: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("Restore rows affected: %w", err)
			}
			restored += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return restored, nil
}

func (s *LedgerStore) Append(ctx context.Context, credentials []string, now time.Time) error {
	if len(credentials) == 0 {
		return nil
	}
	nowMs := now.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var maxPos int64
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(position), 0) FROM ledger;
`).Scan(&maxPos); err != nil {
			return fmt.Errorf("Append max position: %w", err)
		}

		for i, cred := range credentials {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger(credential, position, status, added_at_ms)
VALUES (?, ?, 'available', ?);
`, cred, maxPos+int64(i)+1, nowMs); err != nil {
				return fmt.Errorf("Append insert: %w", err)
			}
		}
		return nil
	})
}

func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM ledger WHERE status = 'available';
`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (s *LedgerStore) PruneIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM ledger WHERE status = 'issued' AND issued_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneIssuedBefore delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("PruneIssuedBefore rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
