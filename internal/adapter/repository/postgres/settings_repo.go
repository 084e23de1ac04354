package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// SettingsRepository implements usecase.SettingsRepository.
type SettingsRepository struct {
	db DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrSettingNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}

	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key string, value decimal.Decimal) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query, key, value)
	return err
}

// SetIfAbsent stores value only when key has no value yet.
func (r *SettingsRepository) SetIfAbsent(ctx context.Context, key string, value decimal.Decimal) error {
	query := `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO NOTHING`

	_, err := r.db.Exec(ctx, query, key, value)
	return err
}

// List returns every stored setting.
func (r *SettingsRepository) List(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			key   string
			value decimal.Decimal
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}

	return settings, rows.Err()
}
