package domain

import "errors"

// Settlement outcome classes. Callers branch on these with errors.Is.
var (
	ErrTransientStore     = errors.New("transient store failure")
	ErrAlreadySettled     = errors.New("payment already settled")
	ErrInvariantViolation = errors.New("settlement invariant violation")
	ErrConfigurationFault = errors.New("configuration fault")
)

var (
	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrPayoutAccountTaken = errors.New("payout account already linked to another user")

	// Queue errors
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchOwnerMismatch = errors.New("batch is not owned by seller")
	ErrNoEligibleBatch    = errors.New("no eligible batch")
	ErrQueueExhausted     = errors.New("invite queue exhausted")

	// Settlement errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidSettlement   = errors.New("invalid settlement input")
	ErrInvalidAmount       = errors.New("amount must be positive")

	// Settings errors
	ErrSettingNotFound = errors.New("setting not found")
	ErrUnknownSetting  = errors.New("unknown setting")

	// Payment errors
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
