package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"baseid/internal/privacy/models"
	"baseid/pkg/platform/sentinel"
	txcontext "baseid/pkg/platform/tx"
)

// PostgresStore persists settings as JSONB in privacy_settings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, did string) (*models.Settings, error) {
	var raw []byte
	err := txcontext.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT settings FROM privacy_settings WHERE did = $1`, did).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find privacy settings: %w", err)
	}
	return decode(raw)
}

func (s *PostgresStore) Save(ctx context.Context, settings *models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal privacy settings: %w", err)
	}
	_, err = txcontext.Use(ctx, s.db).ExecContext(ctx, `
		INSERT INTO privacy_settings (did, settings, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (did) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at`,
		settings.DID, raw, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save privacy settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDiscoverable(ctx context.Context) ([]string, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx,
		`SELECT did FROM privacy_settings WHERE (settings->>'discoverable')::boolean`)
	if err != nil {
		return nil, fmt.Errorf("list discoverable dids: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("scan discoverable did: %w", err)
		}
		out = append(out, did)
	}
	return out, rows.Err()
}

func decode(raw []byte) (*models.Settings, error) {
	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode privacy settings: %w", err)
	}
	if settings.DefaultDisclosure == nil {
		settings.DefaultDisclosure = []string{}
	}
	return &settings, nil
}
