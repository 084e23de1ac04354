package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentIntent is a pending checkout. It carries everything settlement needs
// and lives only until it expires.
type PaymentIntent struct {
	ID               string          `json:"id"`
	BuyerID          string          `json:"buyer_id"`
	SellerID         string          `json:"seller_id"`
	BatchID          string          `json:"batch_id"`
	Amount           decimal.Decimal `json:"amount"`
	CheckoutURL      string          `json:"checkout_url"`
	GatewayReference string          `json:"gateway_reference"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// IntentRequest asks the gateway for a checkout.
type IntentRequest struct {
	IntentID string
	BuyerID  string
	SellerID string
	BatchID  string
	Amount   decimal.Decimal
	Title    string
}

// PaymentStatus is the gateway's view of a payment.
type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// PaymentMetadata is echoed back by the gateway from the intent.
type PaymentMetadata struct {
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
	BatchID  string `json:"batch_id"`
	IntentID string `json:"intent_id"`
}

// Payment is a payment as reported by the gateway.
type Payment struct {
	ID       string
	Status   PaymentStatus
	Amount   decimal.Decimal
	Metadata PaymentMetadata
}

// IsApproved reports whether the payment can be settled.
func (p *Payment) IsApproved() bool {
	return p.Status == PaymentStatusApproved
}

// IsComplete reports whether the payment carries everything settlement needs.
func (p *Payment) IsComplete() bool {
	return p.ID != "" && p.Status != "" && p.Amount.IsPositive() &&
		p.Metadata.BuyerID != "" && p.Metadata.SellerID != "" && p.Metadata.BatchID != ""
}

// SettleInput converts an approved payment into settlement input.
func (p *Payment) SettleInput() SettleInput {
	return SettleInput{
		PaymentID:   p.ID,
		IntentID:    p.Metadata.IntentID,
		BuyerID:     p.Metadata.BuyerID,
		SellerID:    p.Metadata.SellerID,
		BatchID:     p.Metadata.BatchID,
		GrossAmount: p.Amount,
	}
}
