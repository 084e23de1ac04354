package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrAmountTooLarge         = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall         = errors.New("amount below minimum allowed")
	ErrInvalidEmail           = errors.New("invalid email format")
	ErrInvalidPayoutAccount   = errors.New("invalid payout account")
	ErrInvalidSettingValue    = errors.New("invalid setting value")
	ErrInvalidIDFormat        = errors.New("invalid ID format")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidPaymentEnvelope = errors.New("invalid payment notification")
)

// Validation constants
const (
	MaxPaymentAmount       = "1000000000" // 1 billion
	MinPaymentAmount       = "0.01"
	MaxPayoutAccountLength = 128
	MaxIDLength            = 64
	MaxSettingValue        = "1000000000"
	DefaultPageSize        = 50
	MaxPageSize            = 500
)

var (
	emailRegex         = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	payoutAccountRegex = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)
	idRegex            = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// ValidateAmount validates a payment amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	minAmount := decimal.RequireFromString(MinPaymentAmount)
	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinPaymentAmount)
	}

	maxAmount := decimal.RequireFromString(MaxPaymentAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPaymentAmount)
	}

	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, MoneyPlaces)
	}

	return nil
}

// ValidateSettingValue validates a value written to the settings table
func ValidateSettingValue(key string, value decimal.Decimal) error {
	if !IsKnownSetting(key) {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if value.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidSettingValue, key)
	}
	if value.GreaterThan(decimal.RequireFromString(MaxSettingValue)) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidSettingValue, key, MaxSettingValue)
	}
	if key == SettingInvitePrice {
		if err := ValidateAmount(value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSettingValue, err)
		}
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}

	return nil
}

// ValidatePayoutAccount validates an external payout account reference
func ValidatePayoutAccount(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidPayoutAccount)
	}
	if len(ref) > MaxPayoutAccountLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidPayoutAccount, MaxPayoutAccountLength)
	}
	if !payoutAccountRegex.MatchString(ref) {
		return fmt.Errorf("%w: contains forbidden characters", ErrInvalidPayoutAccount)
	}
	return nil
}

// ValidateID validates an opaque identifier taken from a request
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength || !idRegex.MatchString(id) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
