package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// SettingsUseCase reads and updates the named settings. Values are read from
// the store on every call so an update is visible to the next settlement.
type SettingsUseCase struct {
	repo SettingsRepository
}

// NewSettingsUseCase creates a new SettingsUseCase.
func NewSettingsUseCase(repo SettingsRepository) *SettingsUseCase {
	return &SettingsUseCase{repo: repo}
}

// GetSetting returns the current value of key.
func (uc *SettingsUseCase) GetSetting(ctx context.Context, key string) (decimal.Decimal, error) {
	return readSetting(ctx, uc.repo, key)
}

// VerifyRequired fails when any setting the core reads is missing.
func (uc *SettingsUseCase) VerifyRequired(ctx context.Context) error {
	var missing []string
	for _, key := range domain.RequiredSettings {
		if _, err := readSetting(ctx, uc.repo, key); err != nil {
			if errors.Is(err, domain.ErrConfigurationFault) {
				missing = append(missing, key)
				continue
			}
			return err
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing settings %s", domain.ErrConfigurationFault, strings.Join(missing, ", "))
	}
	return nil
}

// ListSettings returns every stored setting.
func (uc *SettingsUseCase) ListSettings(ctx context.Context) (map[string]decimal.Decimal, error) {
	return uc.repo.List(ctx)
}

// UpdateSetting overwrites key. Split weights may not both become zero.
func (uc *SettingsUseCase) UpdateSetting(ctx context.Context, key string, value decimal.Decimal) error {
	if err := domain.ValidateSettingValue(key, value); err != nil {
		return err
	}

	if other, ok := counterpartWeight(key); ok && value.IsZero() {
		otherValue, err := uc.repo.Get(ctx, other)
		if err != nil && !errors.Is(err, domain.ErrSettingNotFound) {
			return err
		}
		if err == nil && otherValue.IsZero() {
			return fmt.Errorf("%w: %s and %s cannot both be zero", domain.ErrInvalidSettingValue, key, other)
		}
	}

	return uc.repo.Set(ctx, key, value)
}

// SeedSettings stores values for keys that are not set yet. Existing values
// are left untouched. It returns the keys it considered, sorted.
func (uc *SettingsUseCase) SeedSettings(ctx context.Context, values map[string]decimal.Decimal) ([]string, error) {
	keys := make([]string, 0, len(values))
	for key, value := range values {
		if err := domain.ValidateSettingValue(key, value); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := uc.repo.SetIfAbsent(ctx, key, values[key]); err != nil {
			return nil, fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return keys, nil
}

func counterpartWeight(key string) (string, bool) {
	switch key {
	case domain.SettingSystemSplit:
		return domain.SettingSellerSplit, true
	case domain.SettingSellerSplit:
		return domain.SettingSystemSplit, true
	}
	return "", false
}

// readSetting maps a missing key to a configuration fault and any other store
// failure to a transient one.
func readSetting(ctx context.Context, repo SettingsRepository, key string) (decimal.Decimal, error) {
	value, err := repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrSettingNotFound) {
			return decimal.Zero, fmt.Errorf("%w: setting %s is not set", domain.ErrConfigurationFault, key)
		}
		return decimal.Zero, fmt.Errorf("%w: read setting %s: %w", domain.ErrTransientStore, key, err)
	}
	return value, nil
}
