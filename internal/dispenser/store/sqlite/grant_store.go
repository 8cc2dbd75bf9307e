package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/icefez/dispenser/internal/db"
	"github.com/icefez/dispenser/internal/dispenser/store"
)

type GrantStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewGrantStore(db *sql.DB, writer *dbpkg.Writer) *GrantStore {
	return &GrantStore{db: db, writer: writer}
}

func (s *GrantStore) Get(ctx context.Context, identity string) (*store.GrantRecord, error) {
	var (
		rec       store.GrantRecord
		expiresMs sql.NullInt64
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT identity, label, expires_at_ms, created_at_ms
FROM grants
WHERE identity = ?;
`, identity).Scan(&rec.Identity, &rec.Label, &expiresMs, &createdMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get grant: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	if expiresMs.Valid {
		t := time.UnixMilli(expiresMs.Int64).UTC()
		rec.ExpiresAt = &t
	}
	return &rec, nil
}

func (s *GrantStore) Put(ctx context.Context, rec store.GrantRecord) error {
	var expiresMs any
	if rec.ExpiresAt != nil {
		expiresMs = rec.ExpiresAt.UTC().UnixMilli()
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO grants(identity, label, expires_at_ms, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
  label = excluded.label,
  expires_at_ms = excluded.expires_at_ms,
  created_at_ms = excluded.created_at_ms;
`, rec.Identity, rec.Label, expiresMs, createdMs); err != nil {
			return fmt.Errorf("Put grant: %w", err)
		}
		return nil
	})
}

func (s *GrantStore) Delete(ctx context.Context, identity string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM grants WHERE identity = ?;
`, identity); err != nil {
			return fmt.Errorf("Delete grant: %w", err)
		}
		return nil
	})
}

func (s *GrantStore) List(ctx context.Context) ([]store.GrantRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identity, label, expires_at_ms, created_at_ms
FROM grants
ORDER BY created_at_ms;
`)
	if err != nil {
		return nil, fmt.Errorf("List grants: %w", err)
	}
	defer rows.Close()

	var out []store.GrantRecord
	for rows.Next() {
		var (
			rec       store.GrantRecord
			expiresMs sql.NullInt64
			createdMs int64
		)
		if err := rows.Scan(&rec.Identity, &rec.Label, &expiresMs, &createdMs); err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		if expiresMs.Valid {
			t := time.UnixMilli(expiresMs.Int64).UTC()
			rec.ExpiresAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List rows: %w", err)
	}
	return out, nil
}
