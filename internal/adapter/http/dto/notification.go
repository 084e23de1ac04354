package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// FlexibleID accepts an identifier sent either as a JSON string or a number.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// NotificationData is the data object of a gateway-native notification.
type NotificationData struct {
	ID FlexibleID `json:"id"`
}

// PaymentNotificationRequest is a payment webhook body. Two shapes are
// accepted: the full payment
//
//	{"payment_id": "...", "status": "approved", "amount": "65.00", "metadata": {...}}
//
// and the gateway-native reference
//
//	{"type": "payment", "data": {"id": "..."}}
type PaymentNotificationRequest struct {
	Type   string            `json:"type,omitempty"`
	Action string            `json:"action,omitempty"`
	Data   *NotificationData `json:"data,omitempty"`

	PaymentID FlexibleID              `json:"payment_id,omitempty"`
	Status    string                  `json:"status,omitempty"`
	Amount    *decimal.Decimal        `json:"amount,omitempty"`
	Metadata  *domain.PaymentMetadata `json:"metadata,omitempty"`
}

// NotificationFromQuery builds a request from the query string some
// gateways use instead of a body: ?type=payment&data.id=123 or the older
// ?topic=payment&id=123.
func NotificationFromQuery(q url.Values) PaymentNotificationRequest {
	req := PaymentNotificationRequest{Type: q.Get("type")}
	if req.Type == "" {
		req.Type = q.Get("topic")
	}

	id := q.Get("data.id")
	if id == "" {
		id = q.Get("id")
	}
	if id != "" {
		req.Data = &NotificationData{ID: FlexibleID(id)}
	}
	return req
}

// ToNotification converts the request to use case input.
func (r *PaymentNotificationRequest) ToNotification() (usecase.Notification, error) {
	if id := strings.TrimSpace(string(r.PaymentID)); id != "" {
		n := usecase.Notification{
			Type:      r.Type,
			PaymentID: id,
			Payment: &domain.Payment{
				ID:     id,
				Status: domain.PaymentStatus(r.Status),
			},
		}
		if r.Amount != nil {
			n.Payment.Amount = *r.Amount
		}
		if r.Metadata != nil {
			n.Payment.Metadata = *r.Metadata
		}
		return n, nil
	}

	if r.Data != nil {
		if id := strings.TrimSpace(string(r.Data.ID)); id != "" {
			return usecase.Notification{Type: r.Type, PaymentID: id}, nil
		}
	}

	// Gateways also send notifications about other resources without a
	// payment id; those are acknowledged and ignored.
	if r.Type != "" && r.Type != usecase.NotificationTypePayment {
		return usecase.Notification{Type: r.Type}, nil
	}

	return usecase.Notification{}, fmt.Errorf("%w: no payment id", domain.ErrInvalidPaymentEnvelope)
}
