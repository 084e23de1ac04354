package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/invitequeue/internal/domain"
)

func TestStaticGateway_IntentThenPayment(t *testing.T) {
	ctx := context.Background()
	g := NewStaticGateway("http://localhost:8080/")

	intent, err := g.CreateIntent(ctx, domain.IntentRequest{
		IntentID: "intent-1",
		BuyerID:  "buyer",
		SellerID: "seller",
		BatchID:  "batch",
		Amount:   decimal.NewFromInt(65),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, intent.GatewayReference)
	assert.True(t, strings.HasPrefix(intent.CheckoutURL, "http://localhost:8080/checkout/"))

	_, err = g.GetPayment(ctx, "pay-1")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	paid, err := g.Pay("intent-1", "pay-1", domain.PaymentStatusApproved)
	require.NoError(t, err)
	assert.True(t, paid.IsComplete())

	got, err := g.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettleInput{
		PaymentID:   "pay-1",
		IntentID:    "intent-1",
		BuyerID:     "buyer",
		SellerID:    "seller",
		BatchID:     "batch",
		GrossAmount: decimal.NewFromInt(65),
	}, got.SettleInput())
}

func TestStaticGateway_PayUnknownIntent(t *testing.T) {
	g := NewStaticGateway("")
	_, err := g.Pay("nope", "pay-1", domain.PaymentStatusApproved)
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestStaticGateway_RecordPayment(t *testing.T) {
	g := NewStaticGateway("")
	g.RecordPayment(domain.Payment{ID: "p", Status: domain.PaymentStatusRejected})

	got, err := g.GetPayment(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, got.IsApproved())
}
