package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/icefez/dispenser/internal/db"
	"github.com/icefez/dispenser/internal/dispenser/store"
)

type HistoryStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewHistoryStore(db *sql.DB, writer *dbpkg.Writer) *HistoryStore {
	return &HistoryStore{db: db, writer: writer}
}

func (s *HistoryStore) Append(ctx context.Context, rec store.HistoryRecord) (int64, error) {
	var distributedBy any
	if rec.DistributedBy != "" {
		distributedBy = rec.DistributedBy
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO history(
  batch_id, recipient_id, recipient_label, credential_id,
  distributed_by, ledger_id, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			rec.BatchID, rec.RecipientID, rec.RecipientLabel, rec.CredentialID,
			distributedBy, rec.LedgerID, createdMs,
		)
		if err != nil {
			return fmt.Errorf("Append history: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("Append last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]store.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, batch_id, recipient_id, recipient_label, credential_id,
       distributed_by, ledger_id, created_at_ms
FROM history
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func (s *HistoryStore) Window(ctx context.Context, since time.Time) ([]store.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, batch_id, recipient_id, recipient_label, credential_id,
       distributed_by, ledger_id, created_at_ms
FROM history
WHERE created_at_ms >= ?
ORDER BY id;
`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("Window: %w", err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func (s *HistoryStore) RemoveByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		q := fmt.Sprintf(`DELETE FROM history WHERE id IN (%s);`, placeholders(len(ids)))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("RemoveByIDs: %w", err)
		}
		return nil
	})
}

func (s *HistoryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count history: %w", err)
	}
	return n, nil
}

func scanHistoryRows(rows *sql.Rows) ([]store.HistoryRecord, error) {
	var out []store.HistoryRecord
	for rows.Next() {
		var (
			rec           store.HistoryRecord
			distributedBy sql.NullString
			createdMs     int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.BatchID, &rec.RecipientID, &rec.RecipientLabel,
			&rec.CredentialID, &distributedBy, &rec.LedgerID, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		if distributedBy.Valid {
			rec.DistributedBy = distributedBy.String
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return out, nil
}
