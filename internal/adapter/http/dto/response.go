package dto

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Role          string          `json:"role"`
	Balance       decimal.Decimal `json:"balance"`
	PayoutAccount string          `json:"payout_account,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// UserFromDomain converts a domain user to a response.
func UserFromDomain(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Role:          string(u.Role),
		Balance:       u.Balance,
		PayoutAccount: u.PayoutAccount,
		CreatedAt:     u.CreatedAt,
	}
}

// BalanceResponse is a user's accumulated seller proceeds.
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// InviteStatsResponse counts a user's invites.
type InviteStatsResponse struct {
	Available int `json:"available"`
	Sold      int `json:"sold"`
}

// InviteStatsFromUseCase converts invite stats to a response.
func InviteStatsFromUseCase(s usecase.InviteStats) *InviteStatsResponse {
	return &InviteStatsResponse{Available: s.Available, Sold: s.Sold}
}

// InvitePriceResponse is the current price of one invite.
type InvitePriceResponse struct {
	Price decimal.Decimal `json:"price"`
}

// PurchaseIntentResponse is a pending checkout.
type PurchaseIntentResponse struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	BatchID     string          `json:"batch_id"`
	Amount      decimal.Decimal `json:"amount"`
	CheckoutURL string          `json:"checkout_url"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// PurchaseIntentFromDomain converts an intent to a response.
func PurchaseIntentFromDomain(i *domain.PaymentIntent) *PurchaseIntentResponse {
	return &PurchaseIntentResponse{
		ID:          i.ID,
		SellerID:    i.SellerID,
		BatchID:     i.BatchID,
		Amount:      i.Amount,
		CheckoutURL: i.CheckoutURL,
		CreatedAt:   i.CreatedAt,
		ExpiresAt:   i.ExpiresAt,
	}
}

// TransactionResponse represents a settlement record.
type TransactionResponse struct {
	ID                string          `json:"id"`
	PaymentID         string          `json:"payment_id"`
	BuyerID           string          `json:"buyer_id"`
	SellerID          string          `json:"seller_id"`
	BatchID           string          `json:"batch_id"`
	Amount            decimal.Decimal `json:"amount"`
	SplitToSeller     decimal.Decimal `json:"split_to_seller"`
	SplitToSystem     decimal.Decimal `json:"split_to_system"`
	Status            string          `json:"status"`
	PendingEffects    []string        `json:"pending_effects,omitempty"`
	ReconcileAttempts int             `json:"reconcile_attempts,omitempty"`
	LastError         string          `json:"last_error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransactionFromDomain converts a transaction to a response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                t.ID,
		PaymentID:         t.PaymentID,
		BuyerID:           t.BuyerID,
		SellerID:          t.SellerID,
		BatchID:           t.BatchID,
		Amount:            t.Amount,
		SplitToSeller:     t.SplitToSeller,
		SplitToSystem:     t.SplitToSystem,
		Status:            string(t.Status),
		PendingEffects:    effectNames(t.PendingEffects()),
		ReconcileAttempts: t.ReconcileAttempts,
		LastError:         t.LastError,
		CreatedAt:         t.CreatedAt,
	}
}

// TransactionsFromDomain converts transactions to responses.
func TransactionsFromDomain(txns []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txns))
	for i, t := range txns {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// BatchResponse represents a queue entry.
type BatchResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	QueuePosition    int64     `json:"queue_position"`
	RemainingInvites int       `json:"remaining_invites"`
	Overflow         bool      `json:"overflow"`
	CreatedAt        time.Time `json:"created_at"`
}

// BatchesFromDomain converts batches to responses.
func BatchesFromDomain(batches []*domain.Batch) []*BatchResponse {
	result := make([]*BatchResponse, len(batches))
	for i, b := range batches {
		result[i] = &BatchResponse{
			ID:               b.ID,
			OwnerID:          b.OwnerID,
			QueuePosition:    b.QueuePosition,
			RemainingInvites: b.RemainingInvites,
			Overflow:         b.Overflow,
			CreatedAt:        b.CreatedAt,
		}
	}
	return result
}

// SettingResponse is one named setting.
type SettingResponse struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

// SettingsFromMap converts settings to responses sorted by key.
func SettingsFromMap(values map[string]decimal.Decimal) []*SettingResponse {
	result := make([]*SettingResponse, 0, len(values))
	for k, v := range values {
		result = append(result, &SettingResponse{Key: k, Value: v})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// NotificationResponse acknowledges a payment notification.
type NotificationResponse struct {
	PaymentID        string   `json:"payment_id,omitempty"`
	Outcome          string   `json:"outcome"`
	TransactionID    string   `json:"transaction_id,omitempty"`
	PendingEffects   []string `json:"pending_effects,omitempty"`
	ClampedDecrement bool     `json:"clamped_decrement,omitempty"`
}

// NotificationFromResult converts a confirmation result to a response.
func NotificationFromResult(r *usecase.ConfirmResult) *NotificationResponse {
	resp := &NotificationResponse{PaymentID: r.PaymentID, Outcome: r.Outcome}
	if s := r.Settlement; s != nil {
		if s.Transaction != nil {
			resp.TransactionID = s.Transaction.ID
		}
		resp.PendingEffects = effectNames(s.PendingEffects)
		resp.ClampedDecrement = s.ClampedDecrement
	}
	return resp
}

// ReconcileResponse summarizes one reconcile pass.
type ReconcileResponse struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
}

// ReconcileFromReport converts a reconcile report to a response.
func ReconcileFromReport(r usecase.ReconcileReport) *ReconcileResponse {
	return &ReconcileResponse{Scanned: r.Scanned, Resolved: r.Resolved, Pending: r.Pending}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func effectNames(effects []domain.SettlementEffect) []string {
	if len(effects) == 0 {
		return nil
	}
	names := make([]string, len(effects))
	for i, e := range effects {
		names[i] = string(e)
	}
	return names
}
