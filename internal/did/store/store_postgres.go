package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"baseid/internal/did/models"
	"baseid/internal/ledger"
	"baseid/pkg/platform/sentinel"
	txcontext "baseid/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists DID records as JSONB documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	doc, anchor, err := encode(record)
	if err != nil {
		return err
	}
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO did_documents (did, document, status, version, anchor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.DID(), doc, string(record.Status), record.Document.VersionID, anchor, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert did document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByDID(ctx context.Context, did string) (*models.Record, error) {
	row := txcontext.Use(ctx, s.db).QueryRowContext(ctx, `
		SELECT document, status, anchor, created_at, updated_at
		FROM did_documents WHERE did = $1`, did)
	return scanRecord(row)
}

// Execute locks the row with FOR UPDATE for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, did string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT document, status, anchor, created_at, updated_at
		FROM did_documents WHERE did = $1 FOR UPDATE`, did)
	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	doc, anchor, err := encode(record)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE did_documents
		SET document = $2, status = $3, version = $4, anchor = $5, updated_at = $6
		WHERE did = $1`,
		did, doc, string(record.Status), record.Document.VersionID, anchor, record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update did document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit did update: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) SetAnchor(ctx context.Context, did string, version int, anchor ledger.Anchor) error {
	raw, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("marshal anchor: %w", err)
	}
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx,
		`UPDATE did_documents SET anchor = $3 WHERE did = $1 AND version = $2`, did, version, raw)
	if err != nil {
		return fmt.Errorf("set did anchor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM did_documents WHERE did = $1)`, did).Scan(&exists); err != nil {
			return fmt.Errorf("check did exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

// ListActive returns active records oldest first. A non-nil among restricts
// the result to those DIDs.
func (s *PostgresStore) ListActive(ctx context.Context, among []string, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	if among != nil && len(among) == 0 {
		return nil, nil
	}
	query := `
		SELECT document, status, anchor, created_at, updated_at
		FROM did_documents WHERE status = $1`
	args := []any{string(models.StatusActive), limit}
	if among != nil {
		query += ` AND did = ANY($3)`
		args = append(args, pq.Array(among))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at ASC LIMIT $2`, args...)
	if err != nil {
		return nil, fmt.Errorf("list did documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		doc, anchor []byte
		status      string
		record      models.Record
	)
	if err := row.Scan(&doc, &status, &anchor, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan did document: %w", err)
	}
	if err := json.Unmarshal(doc, &record.Document); err != nil {
		return nil, fmt.Errorf("decode did document: %w", err)
	}
	if len(anchor) > 0 {
		var a ledger.Anchor
		if err := json.Unmarshal(anchor, &a); err != nil {
			return nil, fmt.Errorf("decode did anchor: %w", err)
		}
		record.Anchor = &a
	}
	record.Status = models.Status(status)
	return &record, nil
}

func encode(record *models.Record) (doc []byte, anchor []byte, err error) {
	doc, err = json.Marshal(record.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal did document: %w", err)
	}
	if record.Anchor != nil {
		anchor, err = json.Marshal(record.Anchor)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal did anchor: %w", err)
		}
	}
	return doc, anchor, nil
}
