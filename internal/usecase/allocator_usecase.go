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

// AllocatorUseCase picks the seller for the next purchase.
type AllocatorUseCase struct {
	userRepo  UserRepository
	batchRepo BatchRepository
	idGen     IDGenerator
	cfg       QueueConfig
	metrics   *metrics.Metrics
}

// NewAllocatorUseCase creates a new AllocatorUseCase.
func NewAllocatorUseCase(
	userRepo UserRepository,
	batchRepo BatchRepository,
	idGen IDGenerator,
	cfg QueueConfig,
	metrics *metrics.Metrics,
) *AllocatorUseCase {
	return &AllocatorUseCase{
		userRepo:  userRepo,
		batchRepo: batchRepo,
		idGen:     idGen,
		cfg:       cfg.withDefaults(),
		metrics:   metrics,
	}
}

// AllocateSeller returns the owner and id of the batch at the head of the
// queue. It refills an empty queue with overflow batches owned by the system
// account. Nothing is decremented here; capacity is consumed at settlement.
func (uc *AllocatorUseCase) AllocateSeller(ctx context.Context) (*domain.Allocation, error) {
	start := time.Now()

	for attempt := 1; attempt <= uc.cfg.AllocationAttempts; attempt++ {
		batch, err := uc.batchRepo.FindEligible(ctx)
		if err == nil {
			uc.observe("allocated", start)
			return &domain.Allocation{SellerID: batch.OwnerID, BatchID: batch.ID}, nil
		}

		if !errors.Is(err, domain.ErrNoEligibleBatch) {
			uc.observe("store_error", start)
			return nil, fmt.Errorf("%w: find eligible batch: %w", domain.ErrTransientStore, err)
		}

		if err := uc.insertOverflowBlock(ctx); err != nil {
			uc.observe("store_error", start)
			return nil, err
		}
	}

	uc.observe("exhausted", start)
	return nil, fmt.Errorf("%w: %w after %d attempts",
		domain.ErrTransientStore, domain.ErrQueueExhausted, uc.cfg.AllocationAttempts)
}

// QueueHead lists the next eligible batches in allocation order.
func (uc *AllocatorUseCase) QueueHead(ctx context.Context, limit int) ([]*domain.Batch, error) {
	limit, _ = domain.ValidatePagination(limit, 0)
	return uc.batchRepo.ListEligible(ctx, limit)
}

func (uc *AllocatorUseCase) insertOverflowBlock(ctx context.Context) error {
	system, err := uc.userRepo.EnsureSystemUser(ctx)
	if err != nil {
		return fmt.Errorf("%w: ensure system user: %w", domain.ErrTransientStore, err)
	}

	block := domain.NewOverflowBlock(uc.idGen.Generate, system.ID,
		uc.cfg.OverflowBlockSize, uc.cfg.OverflowInvites, time.Now().UTC())

	inserted, err := uc.batchRepo.InsertOverflow(ctx, system.ID, block)
	if err != nil {
		return fmt.Errorf("%w: insert overflow block: %w", domain.ErrTransientStore, err)
	}

	if inserted > 0 {
		zerolog.Ctx(ctx).Info().
			Int("batches", inserted).
			Str("owner_id", system.ID).
			Msg("queue empty, inserted overflow block")
		if uc.metrics != nil {
			uc.metrics.OverflowBlocks.Inc()
		}
	}

	return nil
}

func (uc *AllocatorUseCase) observe(outcome string, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.Allocations.WithLabelValues(outcome).Inc()
	uc.metrics.AllocationDuration.Observe(time.Since(start).Seconds())
}
