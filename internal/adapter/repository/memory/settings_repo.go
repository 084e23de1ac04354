package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// SettingsRepository implements usecase.SettingsRepository.
type SettingsRepository struct {
	store *Store
}

// Get returns the value of key.
func (r *SettingsRepository) Get(_ context.Context, key string) (decimal.Decimal, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return decimal.Zero, domain.ErrSettingNotFound
	}
	return v, nil
}

// Set stores value under key.
func (r *SettingsRepository) Set(_ context.Context, key string, value decimal.Decimal) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// SetIfAbsent stores value unless key is already set.
func (r *SettingsRepository) SetIfAbsent(_ context.Context, key string, value decimal.Decimal) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[key]; !ok {
		s.settings[key] = value
	}
	return nil
}

// List returns a copy of all settings.
func (r *SettingsRepository) List(_ context.Context) (map[string]decimal.Decimal, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}
