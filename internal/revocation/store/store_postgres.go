package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	txcontext "baseid/pkg/platform/tx"
)

// PostgresStore persists entries in revocation_entries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Add batch inserts entries with unnest. Existing entries keep their
// original revoked_at.
func (s *PostgresStore) Add(ctx context.Context, issuer string, revokedAt time.Time, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}
	query := `
		INSERT INTO revocation_entries (issuer_did, entry, revoked_at)
		SELECT $1, unnest($2::text[]), $3
		ON CONFLICT (issuer_did, entry) DO NOTHING
	`
	if _, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query, issuer, pq.Array(entries), revokedAt); err != nil {
		return fmt.Errorf("add revocation entries: %w", err)
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, issuer, entry string) (bool, error) {
	var one int
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT 1 FROM revocation_entries WHERE issuer_did = $1 AND entry = $2`, issuer, entry).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revocation entry: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) List(ctx context.Context, issuer string) ([]string, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx,
		`SELECT entry FROM revocation_entries WHERE issuer_did = $1 ORDER BY entry`, issuer)
	if err != nil {
		return nil, fmt.Errorf("list revocation entries: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan revocation entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
