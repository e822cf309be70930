package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"baseid/internal/credential/models"
	"baseid/internal/ledger"
	"baseid/pkg/platform/sentinel"
	txcontext "baseid/pkg/platform/tx"
)

const uniqueViolation = "23505"

const selectColumns = `credential, status, status_reason, anchor, issued_at, updated_at`

// PostgresStore persists credentials in the credentials table. The signed
// credential is stored as JSONB; issuer and subject are denormalised for
// listing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	vc, anchor, err := encode(record)
	if err != nil {
		return err
	}
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO credentials (id, issuer_did, subject_did, credential, status, status_reason, anchor, issued_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID(), record.Issuer(), record.Subject(), vc, string(record.Status), nullString(record.StatusReason),
		anchor, record.CreatedAt, record.Credential.ExpirationDate, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Record, error) {
	row := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE id = $1`, id)
	return scanRecord(row)
}

// Execute locks the row with FOR UPDATE for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, id string, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	record, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	_, anchor, err := encode(record)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE credentials SET status = $2, status_reason = $3, anchor = $4, updated_at = $5
		WHERE id = $1`,
		id, string(record.Status), nullString(record.StatusReason), anchor, record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credential update: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]*models.Record, error) {
	return s.list(ctx, `subject_did`, subject)
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer string) ([]*models.Record, error) {
	return s.list(ctx, `issuer_did`, issuer)
}

func (s *PostgresStore) list(ctx context.Context, column, did string) ([]*models.Record, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE `+column+` = $1 ORDER BY issued_at DESC`, did)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
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
		vc, anchor []byte
		status     string
		reason     sql.NullString
		record     models.Record
	)
	if err := row.Scan(&vc, &status, &reason, &anchor, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	if err := json.Unmarshal(vc, &record.Credential); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if len(anchor) > 0 {
		var a ledger.Anchor
		if err := json.Unmarshal(anchor, &a); err != nil {
			return nil, fmt.Errorf("decode credential anchor: %w", err)
		}
		record.Anchor = &a
	}
	record.Status = models.Status(status)
	record.StatusReason = reason.String
	return &record, nil
}

func encode(record *models.Record) (vc []byte, anchor []byte, err error) {
	vc, err = json.Marshal(record.Credential)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal credential: %w", err)
	}
	if record.Anchor != nil {
		anchor, err = json.Marshal(record.Anchor)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal credential anchor: %w", err)
		}
	}
	return vc, anchor, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
