package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// SettingsRepository implements usecase.SettingsRepository. Values are
// stored as decimal text.
type SettingsRepository struct {
	db *sql.DB
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.ErrSettingNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return parseSetting(key, raw)
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key string, value decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value.String(), nowMicros(),
	)
	return err
}

// SetIfAbsent stores value only when key has no value yet.
func (r *SettingsRepository) SetIfAbsent(ctx context.Context, key string, value decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT (key) DO NOTHING`,
		key, value.String(), nowMicros(),
	)
	return err
}

// List returns every stored setting.
func (r *SettingsRepository) List(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		value, err := parseSetting(key, raw)
		if err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func parseSetting(key, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: setting %s holds %q: %w", domain.ErrConfigurationFault, key, raw, err)
	}
	return value, nil
}
