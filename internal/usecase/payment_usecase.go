package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
)

// Settler settles confirmed payments.
type Settler interface {
	Settle(ctx context.Context, in domain.SettleInput) (*domain.SettlementResult, error)
}

// NotificationTypePayment is the only gateway notification type acted upon.
const NotificationTypePayment = "payment"

// OutcomeIgnored marks a notification that needed no settlement.
const OutcomeIgnored = "ignored"

// Notification is a gateway payment notification. Payment is set when the
// gateway sent the full payment; otherwise only PaymentID is known.
type Notification struct {
	Type      string
	PaymentID string
	Payment   *domain.Payment
}

// ConfirmResult is the outcome of handling one notification.
type ConfirmResult struct {
	PaymentID  string
	Outcome    string
	Settlement *domain.SettlementResult
}

// PaymentUseCase handles gateway notifications.
type PaymentUseCase struct {
	gateway PaymentGateway
	settler Settler
	verify  bool
	metrics *metrics.Metrics
}

// NewPaymentUseCase creates a new PaymentUseCase. With verify set every
// notification is checked against the gateway before settling.
func NewPaymentUseCase(gateway PaymentGateway, settler Settler, verify bool, metrics *metrics.Metrics) *PaymentUseCase {
	return &PaymentUseCase{
		gateway: gateway,
		settler: settler,
		verify:  verify,
		metrics: metrics,
	}
}

// ConfirmPayment settles the notified payment if the gateway approved it.
// It returns only after the settlement record is committed.
func (uc *PaymentUseCase) ConfirmPayment(ctx context.Context, n Notification) (*ConfirmResult, error) {
	result, err := uc.confirmPayment(ctx, n)

	if uc.metrics != nil {
		outcome := "error"
		if err == nil {
			outcome = result.Outcome
		}
		uc.metrics.Notifications.WithLabelValues(outcome).Inc()
	}

	return result, err
}

func (uc *PaymentUseCase) confirmPayment(ctx context.Context, n Notification) (*ConfirmResult, error) {
	log := zerolog.Ctx(ctx)

	if n.Type != "" && n.Type != NotificationTypePayment {
		log.Debug().Str("type", n.Type).Msg("ignoring non-payment notification")
		return &ConfirmResult{PaymentID: n.PaymentID, Outcome: OutcomeIgnored}, nil
	}

	payment, err := uc.resolvePayment(ctx, n)
	if err != nil {
		return nil, err
	}

	if !payment.IsApproved() {
		log.Info().
			Str("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Msg("payment not approved, nothing to settle")
		return &ConfirmResult{PaymentID: payment.ID, Outcome: OutcomeIgnored}, nil
	}

	settlement, err := uc.settler.Settle(ctx, payment.SettleInput())
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			log.Error().
				Err(err).
				Str("payment_id", payment.ID).
				Interface("metadata", payment.Metadata).
				Msg("approved payment cannot be settled")
		}
		return nil, err
	}

	return &ConfirmResult{
		PaymentID:  payment.ID,
		Outcome:    string(settlement.Status),
		Settlement: settlement,
	}, nil
}

func (uc *PaymentUseCase) resolvePayment(ctx context.Context, n Notification) (*domain.Payment, error) {
	if n.Payment != nil && n.Payment.IsComplete() && !uc.verify {
		return n.Payment, nil
	}

	id := n.PaymentID
	if id == "" && n.Payment != nil {
		id = n.Payment.ID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing payment id", domain.ErrInvalidPaymentEnvelope)
	}

	payment, err := uc.gateway.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPaymentEnvelope, err)
		}
		return nil, err
	}
	return payment, nil
}
