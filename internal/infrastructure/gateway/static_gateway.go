package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iho/invitequeue/internal/domain"
)

// StaticGateway is an in-process gateway for development and tests. Intents
// get a local checkout URL; payments exist only once recorded.
type StaticGateway struct {
	checkoutBase string

	mu       sync.RWMutex
	intents  map[string]*domain.PaymentIntent
	payments map[string]*domain.Payment
}

// NewStaticGateway creates a StaticGateway whose checkout URLs start with
// checkoutBase.
func NewStaticGateway(checkoutBase string) *StaticGateway {
	return &StaticGateway{
		checkoutBase: strings.TrimRight(checkoutBase, "/"),
		intents:      make(map[string]*domain.PaymentIntent),
		payments:     make(map[string]*domain.Payment),
	}
}

func (g *StaticGateway) CreateIntent(_ context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	ref := uuid.NewString()
	intent := &domain.PaymentIntent{
		ID:               req.IntentID,
		BuyerID:          req.BuyerID,
		SellerID:         req.SellerID,
		BatchID:          req.BatchID,
		Amount:           req.Amount,
		CheckoutURL:      g.checkoutBase + "/checkout/" + ref,
		GatewayReference: ref,
	}

	g.mu.Lock()
	g.intents[req.IntentID] = intent
	g.mu.Unlock()

	out := *intent
	return &out, nil
}

func (g *StaticGateway) GetPayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

// RecordPayment makes p visible to GetPayment.
func (g *StaticGateway) RecordPayment(p domain.Payment) {
	g.mu.Lock()
	g.payments[p.ID] = &p
	g.mu.Unlock()
}

// Pay records a payment with the given status for a previously created
// intent, echoing the intent's metadata the way a real provider would.
func (g *StaticGateway) Pay(intentID, paymentID string, status domain.PaymentStatus) (*domain.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}

	p := &domain.Payment{
		ID:     paymentID,
		Status: status,
		Amount: intent.Amount,
		Metadata: domain.PaymentMetadata{
			BuyerID:  intent.BuyerID,
			SellerID: intent.SellerID,
			BatchID:  intent.BatchID,
			IntentID: intent.ID,
		},
	}
	g.payments[paymentID] = p

	out := *p
	return &out, nil
}
