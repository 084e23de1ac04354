package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
)

// SettlementUseCase turns a confirmed payment into a settlement record and
// the state changes it owes: seller credit, batch decrement and buyer
// replenishment.
//
// The record is inserted once per payment id. Each effect is then applied in
// its own store transaction that first flips the effect's flag on the record,
// so an effect is applied at most once no matter how many callers race on the
// same payment, and a failed effect stays visible until it is resumed.
type SettlementUseCase struct {
	txManager    TransactionManager
	userRepo     UserRepository
	batchRepo    BatchRepository
	txnRepo      TransactionRepository
	settingsRepo SettingsRepository
	idGen        IDGenerator
	retrier      Retrier
	cfg          QueueConfig
	metrics      *metrics.Metrics
}

// NewSettlementUseCase creates a new SettlementUseCase.
func NewSettlementUseCase(
	txManager TransactionManager,
	userRepo UserRepository,
	batchRepo BatchRepository,
	txnRepo TransactionRepository,
	settingsRepo SettingsRepository,
	idGen IDGenerator,
	retrier Retrier,
	cfg QueueConfig,
	metrics *metrics.Metrics,
) *SettlementUseCase {
	return &SettlementUseCase{
		txManager:    txManager,
		userRepo:     userRepo,
		batchRepo:    batchRepo,
		txnRepo:      txnRepo,
		settingsRepo: settingsRepo,
		idGen:        idGen,
		retrier:      retrier,
		cfg:          cfg.withDefaults(),
		metrics:      metrics,
	}
}

// Settle records the payment and applies its effects.
//
// A replayed payment id returns status already-settled with the stored record.
// Effects that fail after the record is committed are recorded on it and the
// call returns status settled-with-pending-effects without an error.
func (uc *SettlementUseCase) Settle(ctx context.Context, in domain.SettleInput) (*domain.SettlementResult, error) {
	start := time.Now()

	result, err := uc.settle(ctx, in)

	uc.observe(result, err, start)
	if err == nil && result.Status != domain.SettlementAlreadySettled && uc.metrics != nil {
		uc.metrics.SettlementAmount.Observe(in.GrossAmount.InexactFloat64())
	}

	return result, err
}

func (uc *SettlementUseCase) settle(ctx context.Context, in domain.SettleInput) (*domain.SettlementResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// A replay is answered from the stored record, whatever the references
	// or splits look like now.
	prior, err := uc.txnRepo.GetByPaymentID(ctx, in.PaymentID)
	switch {
	case err == nil:
		return uc.alreadySettled(ctx, prior), nil
	case !errors.Is(err, domain.ErrTransactionNotFound):
		return nil, fmt.Errorf("%w: lookup payment: %w", domain.ErrTransientStore, err)
	}

	if err := uc.checkReferences(ctx, in); err != nil {
		return nil, err
	}

	systemWeight, err := readSetting(ctx, uc.settingsRepo, domain.SettingSystemSplit)
	if err != nil {
		return nil, err
	}
	sellerWeight, err := readSetting(ctx, uc.settingsRepo, domain.SettingSellerSplit)
	if err != nil {
		return nil, err
	}

	toSeller, toSystem, err := domain.ComputeSplit(in.GrossAmount, systemWeight, sellerWeight)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uc.idGen.Generate(),
		PaymentID:     in.PaymentID,
		IntentID:      in.IntentID,
		BuyerID:       in.BuyerID,
		SellerID:      in.SellerID,
		BatchID:       in.BatchID,
		Amount:        in.GrossAmount,
		SplitToSeller: toSeller,
		SplitToSystem: toSystem,
		Status:        domain.TransactionStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	inserted, existing, err := uc.txnRepo.InsertIfAbsent(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("%w: insert transaction: %w", domain.ErrTransientStore, err)
	}

	if !inserted {
		return uc.alreadySettled(ctx, existing), nil
	}

	return uc.applyEffects(ctx, txn), nil
}

func (uc *SettlementUseCase) alreadySettled(ctx context.Context, existing *domain.Transaction) *domain.SettlementResult {
	zerolog.Ctx(ctx).Info().
		Str("payment_id", existing.PaymentID).
		Str("transaction_id", existing.ID).
		Msg("payment already settled")
	return &domain.SettlementResult{
		Status:         domain.SettlementAlreadySettled,
		Transaction:    existing,
		PendingEffects: existing.PendingEffects(),
	}
}

// ResumeEffects applies the effects of txn that are still pending.
func (uc *SettlementUseCase) ResumeEffects(ctx context.Context, txn *domain.Transaction) (*domain.SettlementResult, error) {
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return uc.applyEffects(ctx, txn), nil
}

// ResumeByPaymentID resumes the transaction recorded for paymentID.
func (uc *SettlementUseCase) ResumeByPaymentID(ctx context.Context, paymentID string) (*domain.SettlementResult, error) {
	txn, err := uc.txnRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return uc.ResumeEffects(ctx, txn)
}

// ReconcileReport summarises one ReconcilePending pass.
type ReconcileReport struct {
	Scanned  int
	Resolved int
	Pending  int
}

// ReconcilePending resumes every transaction matched by filter.
func (uc *SettlementUseCase) ReconcilePending(ctx context.Context, filter domain.PendingFilter) (ReconcileReport, error) {
	var report ReconcileReport

	txns, err := uc.txnRepo.ListPendingEffects(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("%w: list pending effects: %w", domain.ErrTransientStore, err)
	}

	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Scanned++
		result, err := uc.ResumeEffects(ctx, txn)
		if err != nil {
			return report, err
		}

		if len(result.PendingEffects) == 0 {
			report.Resolved++
			if uc.metrics != nil {
				uc.metrics.ReconcileRuns.WithLabelValues("resolved").Inc()
			}
			continue
		}

		report.Pending++
		if uc.metrics != nil {
			uc.metrics.ReconcileRuns.WithLabelValues("pending").Inc()
		}
	}

	return report, nil
}

// ListPendingSettlements returns transactions that still owe effects,
// including those past the reconciler's attempt limit.
func (uc *SettlementUseCase) ListPendingSettlements(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	limit, _ = domain.ValidatePagination(limit, 0)
	return uc.txnRepo.ListPendingEffects(ctx, domain.PendingFilter{Limit: limit})
}

func (uc *SettlementUseCase) checkReferences(ctx context.Context, in domain.SettleInput) error {
	for _, id := range []string{in.BuyerID, in.SellerID} {
		if _, err := uc.userRepo.GetByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return fmt.Errorf("%w: user %s: %w", domain.ErrInvariantViolation, id, err)
			}
			return fmt.Errorf("%w: get user: %w", domain.ErrTransientStore, err)
		}
	}

	batch, err := uc.batchRepo.GetByID(ctx, in.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			return fmt.Errorf("%w: batch %s: %w", domain.ErrInvariantViolation, in.BatchID, err)
		}
		return fmt.Errorf("%w: get batch: %w", domain.ErrTransientStore, err)
	}

	if batch.OwnerID != in.SellerID {
		return fmt.Errorf("%w: batch %s owned by %s, not %s: %w",
			domain.ErrInvariantViolation, batch.ID, batch.OwnerID, in.SellerID, domain.ErrBatchOwnerMismatch)
	}

	return nil
}

// applyEffects runs the pending effects of txn. It does not stop at the first
// failure: the remaining effects are independent of each other.
func (uc *SettlementUseCase) applyEffects(ctx context.Context, txn *domain.Transaction) *domain.SettlementResult {
	// The record is committed; finish the effects even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := zerolog.Ctx(ctx)

	result := &domain.SettlementResult{Transaction: txn}
	var failures []string

	for _, effect := range txn.PendingEffects() {
		var clamped bool
		err := uc.retrier.RetryN(ctx, uc.cfg.EffectMaxRetries, func() error {
			var err error
			clamped, err = uc.applyEffect(ctx, txn, effect)
			return err
		})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", effect, err))
			log.Warn().
				Err(err).
				Str("payment_id", txn.PaymentID).
				Str("effect", string(effect)).
				Msg("settlement effect failed, left for reconciliation")
			if uc.metrics != nil {
				uc.metrics.EffectFailures.WithLabelValues(string(effect)).Inc()
			}
			continue
		}

		txn.MarkApplied(effect)

		if clamped {
			result.ClampedDecrement = true
			log.Warn().
				Str("payment_id", txn.PaymentID).
				Str("batch_id", txn.BatchID).
				Msg("batch already empty, decrement clamped at zero")
			if uc.metrics != nil {
				uc.metrics.ClampedDecrements.Inc()
			}
		}
	}

	result.PendingEffects = txn.PendingEffects()
	if len(failures) == 0 {
		result.Status = domain.SettlementSettled
		return result
	}

	result.Status = domain.SettlementSettledPendingEffects
	txn.ReconcileAttempts++
	txn.LastError = strings.Join(failures, "; ")

	if err := uc.txnRepo.RecordEffectFailure(ctx, txn.PaymentID, txn.LastError); err != nil {
		log.Error().
			Err(err).
			Str("payment_id", txn.PaymentID).
			Msg("failed to record settlement effect failure")
	}

	return result
}

func (uc *SettlementUseCase) applyEffect(ctx context.Context, txn *domain.Transaction, effect domain.SettlementEffect) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	flipped, err := uc.txnRepo.MarkEffectApplied(ctx, tx, txn.PaymentID, effect)
	if err != nil {
		return false, err
	}
	if !flipped {
		// Applied by a concurrent caller.
		return false, nil
	}

	var clamped bool
	switch effect {
	case domain.EffectSellerCredit:
		err = uc.userRepo.IncrementBalance(ctx, tx, txn.SellerID, txn.SplitToSeller)
	case domain.EffectBatchDecrement:
		clamped, err = uc.batchRepo.DecrementInvites(ctx, tx, txn.BatchID, 1)
	case domain.EffectBuyerReplenish:
		batch := domain.NewBuyerBatch(uc.idGen.Generate(), txn.BuyerID, uc.cfg.StartingInvites, time.Now().UTC())
		err = uc.batchRepo.Insert(ctx, tx, []*domain.Batch{batch})
	default:
		err = fmt.Errorf("unknown settlement effect %q", effect)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	return clamped, nil
}

func (uc *SettlementUseCase) observe(result *domain.SettlementResult, err error, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.Settlements.WithLabelValues(settlementOutcome(result, err)).Inc()
	uc.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
}

func settlementOutcome(result *domain.SettlementResult, err error) string {
	switch {
	case err == nil:
		return string(result.Status)
	case errors.Is(err, domain.ErrInvalidSettlement):
		return "invalid"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, domain.ErrConfigurationFault):
		return "configuration_fault"
	default:
		return "transient"
	}
}
