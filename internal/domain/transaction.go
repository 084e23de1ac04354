package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a settlement record.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// SettlementEffect names one of the state changes owed after a settlement
// row is committed. Each flips from unapplied to applied exactly once.
type SettlementEffect string

const (
	EffectSellerCredit   SettlementEffect = "seller_credited"
	EffectBatchDecrement SettlementEffect = "batch_decremented"
	EffectBuyerReplenish SettlementEffect = "buyer_replenished"
)

// SettlementEffects lists every effect in the order they are applied.
var SettlementEffects = []SettlementEffect{
	EffectSellerCredit,
	EffectBatchDecrement,
	EffectBuyerReplenish,
}

// IsValid checks that e is a known effect. Stores use it before
// interpolating the effect into a column name.
func (e SettlementEffect) IsValid() bool {
	switch e {
	case EffectSellerCredit, EffectBatchDecrement, EffectBuyerReplenish:
		return true
	}
	return false
}

// Transaction records one settled purchase, keyed by the gateway payment id.
type Transaction struct {
	ID                string
	PaymentID         string
	IntentID          string
	BuyerID           string
	SellerID          string
	BatchID           string
	Amount            decimal.Decimal
	SplitToSeller     decimal.Decimal
	SplitToSystem     decimal.Decimal
	Status            TransactionStatus
	SellerCredited    bool
	BatchDecremented  bool
	BuyerReplenished  bool
	ReconcileAttempts int
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectApplied reports whether effect has already been applied.
func (t *Transaction) EffectApplied(effect SettlementEffect) bool {
	switch effect {
	case EffectSellerCredit:
		return t.SellerCredited
	case EffectBatchDecrement:
		return t.BatchDecremented
	case EffectBuyerReplenish:
		return t.BuyerReplenished
	}
	return false
}

// MarkApplied sets the in-memory flag for effect.
func (t *Transaction) MarkApplied(effect SettlementEffect) {
	switch effect {
	case EffectSellerCredit:
		t.SellerCredited = true
	case EffectBatchDecrement:
		t.BatchDecremented = true
	case EffectBuyerReplenish:
		t.BuyerReplenished = true
	}
}

// PendingEffects returns the effects not applied yet.
func (t *Transaction) PendingEffects() []SettlementEffect {
	var pending []SettlementEffect
	for _, e := range SettlementEffects {
		if !t.EffectApplied(e) {
			pending = append(pending, e)
		}
	}
	return pending
}

// HasPendingEffects reports whether any effect is still owed.
func (t *Transaction) HasPendingEffects() bool {
	return len(t.PendingEffects()) > 0
}

// PendingFilter selects transactions with owed effects.
type PendingFilter struct {
	// UpdatedBefore skips rows touched after this instant. Zero means no bound.
	UpdatedBefore time.Time
	// MaxAttempts skips rows that failed this many times. Zero means no bound.
	MaxAttempts int
	Limit       int
}

// SettleInput is a confirmed payment ready to be settled.
type SettleInput struct {
	PaymentID   string
	IntentID    string
	BuyerID     string
	SellerID    string
	BatchID     string
	GrossAmount decimal.Decimal
}

// Validate checks the input before any store access.
func (in SettleInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.PaymentID) == "" {
		missing = append(missing, "payment_id")
	}
	if strings.TrimSpace(in.BuyerID) == "" {
		missing = append(missing, "buyer_id")
	}
	if strings.TrimSpace(in.SellerID) == "" {
		missing = append(missing, "seller_id")
	}
	if strings.TrimSpace(in.BatchID) == "" {
		missing = append(missing, "batch_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSettlement, strings.Join(missing, ", "))
	}
	if !in.GrossAmount.IsPositive() {
		return fmt.Errorf("%w: %w", ErrInvalidSettlement, ErrInvalidAmount)
	}
	if !in.GrossAmount.Equal(in.GrossAmount.Round(MoneyPlaces)) {
		return fmt.Errorf("%w: gross amount %s has more than %d decimal places: %w",
			ErrInvalidSettlement, in.GrossAmount, MoneyPlaces, ErrInvalidAmount)
	}
	return nil
}

// SettlementStatus is the outcome of a Settle call that did not fail.
type SettlementStatus string

const (
	SettlementSettled               SettlementStatus = "settled"
	SettlementSettledPendingEffects SettlementStatus = "settled-with-pending-effects"
	SettlementAlreadySettled        SettlementStatus = "already-settled"
)

// SettlementResult describes what a Settle call did.
type SettlementResult struct {
	Status           SettlementStatus
	Transaction      *Transaction
	PendingEffects   []SettlementEffect
	ClampedDecrement bool
}
