package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/retry"
)

func newTestGateway(t *testing.T, handler http.Handler) *HTTPGateway {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewHTTPGateway(Config{
		BaseURL:         srv.URL,
		AccessToken:     "test-token",
		NotificationURL: "https://invites.example.com/webhooks/payment",
		Retry: retry.Config{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxElapsedTime:  time.Second,
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return g
}

func TestNewHTTPGateway_InvalidBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(Config{BaseURL: "not a url"})
	assert.ErrorIs(t, err, domain.ErrConfigurationFault)
}

func TestHTTPGateway_CreateIntent(t *testing.T) {
	var got preferenceRequest
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "intent-1", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pref-123","init_point":"https://pay.example.com/checkout?pref_id=pref-123"}`))
	}))

	intent, err := g.CreateIntent(context.Background(), domain.IntentRequest{
		IntentID: "intent-1",
		BuyerID:  "buyer",
		SellerID: "seller",
		BatchID:  "batch",
		Amount:   decimal.RequireFromString("65.00"),
		Title:    "Invite",
	})
	require.NoError(t, err)

	assert.Equal(t, "intent-1", intent.ID)
	assert.Equal(t, "pref-123", intent.GatewayReference)
	assert.Equal(t, "https://pay.example.com/checkout?pref_id=pref-123", intent.CheckoutURL)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("65")))

	require.Len(t, got.Items, 1)
	assert.Equal(t, "Invite", got.Items[0].Title)
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("65")))
	assert.Equal(t, "intent-1", got.ExternalReference)
	assert.Equal(t, "https://invites.example.com/webhooks/payment", got.NotificationURL)
	assert.Equal(t, domain.PaymentMetadata{
		BuyerID: "buyer", SellerID: "seller", BatchID: "batch", IntentID: "intent-1",
	}, got.Metadata)
}

func TestHTTPGateway_CreateIntent_MissingFields(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))

	_, err := g.CreateIntent(context.Background(), domain.IntentRequest{IntentID: "i", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestHTTPGateway_GetPayment(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/987654", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": 987654,
			"status": "approved",
			"transaction_amount": 65.5,
			"metadata": {"buyer_id": "b", "seller_id": "s", "batch_id": "x", "intent_id": "i"}
		}`))
	}))

	p, err := g.GetPayment(context.Background(), "987654")
	require.NoError(t, err)

	assert.Equal(t, "987654", p.ID)
	assert.True(t, p.IsApproved())
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("65.50")))
	assert.Equal(t, "b", p.Metadata.BuyerID)
	assert.Equal(t, "s", p.Metadata.SellerID)
	assert.Equal(t, "x", p.Metadata.BatchID)
	assert.Equal(t, "i", p.Metadata.IntentID)
	assert.True(t, p.IsComplete())
}

func TestHTTPGateway_GetPayment_NotFound(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))

	_, err := g.GetPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGateway_GetPayment_EmptyID(t *testing.T) {
	g := newTestGateway(t, http.NotFoundHandler())

	_, err := g.GetPayment(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestHTTPGateway_GetPayment_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"status":"pending","transaction_amount":10}`))
	}))

	p, err := g.GetPayment(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGateway_GetPayment_Unavailable(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := g.GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGateway_GetPayment_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))

	_, err := g.GetPayment(context.Background(), "1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrGatewayUnavailable))
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGateway_GetPayment_BadAmount(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"status":"approved","transaction_amount":"lots"}`))
	}))

	_, err := g.GetPayment(context.Background(), "1")
	assert.Error(t, err)
}
