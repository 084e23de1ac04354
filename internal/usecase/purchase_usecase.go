package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
)

// SellerAllocator picks the seller for a purchase.
type SellerAllocator interface {
	AllocateSeller(ctx context.Context) (*domain.Allocation, error)
}

// PurchaseUseCase creates checkout intents for invite purchases.
type PurchaseUseCase struct {
	userRepo     UserRepository
	settingsRepo SettingsRepository
	allocator    SellerAllocator
	gateway      PaymentGateway
	intents      IntentStore
	idGen        IDGenerator
	intentTTL    time.Duration
	metrics      *metrics.Metrics
}

// NewPurchaseUseCase creates a new PurchaseUseCase.
func NewPurchaseUseCase(
	userRepo UserRepository,
	settingsRepo SettingsRepository,
	allocator SellerAllocator,
	gateway PaymentGateway,
	intents IntentStore,
	idGen IDGenerator,
	intentTTL time.Duration,
	metrics *metrics.Metrics,
) *PurchaseUseCase {
	if intentTTL <= 0 {
		intentTTL = DefaultIntentTTL
	}
	return &PurchaseUseCase{
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		allocator:    allocator,
		gateway:      gateway,
		intents:      intents,
		idGen:        idGen,
		intentTTL:    intentTTL,
		metrics:      metrics,
	}
}

// CreatePurchaseIntent allocates a seller for buyerID and opens a checkout
// at the current invite price. The intent carries the buyer, seller and
// batch ids to the gateway so the notification can be settled without it.
func (uc *PurchaseUseCase) CreatePurchaseIntent(ctx context.Context, buyerID string) (*domain.PaymentIntent, error) {
	intent, err := uc.createPurchaseIntent(ctx, buyerID)
	if uc.metrics != nil {
		outcome := "created"
		if err != nil {
			outcome = "failed"
		}
		uc.metrics.PurchaseIntents.WithLabelValues(outcome).Inc()
	}
	return intent, err
}

func (uc *PurchaseUseCase) createPurchaseIntent(ctx context.Context, buyerID string) (*domain.PaymentIntent, error) {
	buyer, err := uc.userRepo.GetByID(ctx, buyerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load buyer: %w", domain.ErrTransientStore, err)
	}

	price, err := readSetting(ctx, uc.settingsRepo, domain.SettingInvitePrice)
	if err != nil {
		return nil, err
	}

	allocation, err := uc.allocator.AllocateSeller(ctx)
	if err != nil {
		return nil, err
	}

	intentID := uc.idGen.Generate()
	intent, err := uc.gateway.CreateIntent(ctx, domain.IntentRequest{
		IntentID: intentID,
		BuyerID:  buyer.ID,
		SellerID: allocation.SellerID,
		BatchID:  allocation.BatchID,
		Amount:   price,
		Title:    "Invite",
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	now := time.Now().UTC()
	intent.ID = intentID
	intent.BuyerID = buyer.ID
	intent.SellerID = allocation.SellerID
	intent.BatchID = allocation.BatchID
	intent.Amount = price
	intent.CreatedAt = now
	intent.ExpiresAt = now.Add(uc.intentTTL)

	if err := uc.intents.Save(ctx, intent, uc.intentTTL); err != nil {
		return nil, fmt.Errorf("save payment intent: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("intent_id", intent.ID).
		Str("buyer_id", buyer.ID).
		Str("seller_id", allocation.SellerID).
		Str("batch_id", allocation.BatchID).
		Msg("purchase intent created")

	return intent, nil
}

// GetPurchaseIntent returns an unexpired intent owned by buyerID.
func (uc *PurchaseUseCase) GetPurchaseIntent(ctx context.Context, buyerID, intentID string) (*domain.PaymentIntent, error) {
	intent, err := uc.intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.BuyerID != buyerID {
		return nil, domain.ErrIntentNotFound
	}
	return intent, nil
}
