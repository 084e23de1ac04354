package dto

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

func TestRegisterUserRequest_ToUseCaseInput(t *testing.T) {
	req := RegisterUserRequest{Email: "a@b.co", Role: "admin", PayoutAccount: "acct-1"}
	in := req.ToUseCaseInput()

	if in.Email != "a@b.co" || in.Role != domain.RoleAdmin || in.PayoutAccount != "acct-1" {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestUpdateSettingRequest_DecodesStringAndNumber(t *testing.T) {
	for _, body := range []string{`{"value":"65.50"}`, `{"value":65.5}`} {
		var req UpdateSettingRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if !req.Value.Equal(decimal.RequireFromString("65.5")) {
			t.Fatalf("decode %s: got %s", body, req.Value)
		}
	}
}

func TestFlexibleID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FlexibleID
		wantErr bool
	}{
		{name: "string", input: `"pay-1"`, want: "pay-1"},
		{name: "number", input: `1234567890123`, want: "1234567890123"},
		{name: "null", input: `null`, want: ""},
		{name: "object", input: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id FlexibleID
			err := json.Unmarshal([]byte(tt.input), &id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, id)
			}
		})
	}
}

func TestPaymentNotificationRequest_FullPayload(t *testing.T) {
	body := `{
		"payment_id": "pay-1",
		"status": "approved",
		"amount": "65.00",
		"metadata": {"buyer_id": "b", "seller_id": "s", "batch_id": "x", "intent_id": "i"}
	}`

	var req PaymentNotificationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	n, err := req.ToNotification()
	if err != nil {
		t.Fatalf("ToNotification: %v", err)
	}
	if n.PaymentID != "pay-1" || n.Payment == nil {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if !n.Payment.IsApproved() || !n.Payment.IsComplete() {
		t.Fatalf("expected complete approved payment, got %+v", n.Payment)
	}
	if n.Payment.Metadata.IntentID != "i" {
		t.Fatalf("expected metadata to be carried, got %+v", n.Payment.Metadata)
	}
}

func TestPaymentNotificationRequest_NativePayload(t *testing.T) {
	var req PaymentNotificationRequest
	if err := json.Unmarshal([]byte(`{"type":"payment","action":"payment.created","data":{"id":987}}`), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	n, err := req.ToNotification()
	if err != nil {
		t.Fatalf("ToNotification: %v", err)
	}
	if n.Type != usecase.NotificationTypePayment || n.PaymentID != "987" || n.Payment != nil {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestPaymentNotificationRequest_OtherTopicWithoutID(t *testing.T) {
	req := PaymentNotificationRequest{Type: "merchant_order"}

	n, err := req.ToNotification()
	if err != nil {
		t.Fatalf("ToNotification: %v", err)
	}
	if n.Type != "merchant_order" {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestPaymentNotificationRequest_Empty(t *testing.T) {
	req := PaymentNotificationRequest{Data: &NotificationData{ID: "  "}}

	_, err := req.ToNotification()
	if !errors.Is(err, domain.ErrInvalidPaymentEnvelope) {
		t.Fatalf("expected ErrInvalidPaymentEnvelope, got %v", err)
	}
}

func TestNotificationFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantType string
		wantID   string
	}{
		{name: "webhook style", query: "type=payment&data.id=123", wantType: "payment", wantID: "123"},
		{name: "ipn style", query: "topic=payment&id=456", wantType: "payment", wantID: "456"},
		{name: "empty", query: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			req := NotificationFromQuery(q)
			if req.Type != tt.wantType {
				t.Fatalf("expected type %q, got %q", tt.wantType, req.Type)
			}
			var id string
			if req.Data != nil {
				id = string(req.Data.ID)
			}
			if id != tt.wantID {
				t.Fatalf("expected id %q, got %q", tt.wantID, id)
			}
		})
	}
}
