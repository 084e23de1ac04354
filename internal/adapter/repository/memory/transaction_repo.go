package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// InsertIfAbsent stores txn unless its payment id is already recorded.
func (r *TransactionRepository) InsertIfAbsent(_ context.Context, txn *domain.Transaction) (bool, *domain.Transaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.txns[txn.PaymentID]; ok {
		out := *existing
		return false, &out, nil
	}

	c := *txn
	s.txns[c.PaymentID] = &c
	return true, nil, nil
}

// GetByPaymentID retrieves a transaction by its payment id.
func (r *TransactionRepository) GetByPaymentID(_ context.Context, paymentID string) (*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.txns[paymentID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	out := *txn
	return &out, nil
}

// MarkEffectApplied sets the effect flag if it is unset.
func (r *TransactionRepository) MarkEffectApplied(_ context.Context, tx usecase.Transaction, paymentID string, effect domain.SettlementEffect) (bool, error) {
	t, err := r.store.own(tx)
	if err != nil {
		return false, err
	}

	txn, ok := r.store.txns[paymentID]
	if !ok {
		return false, domain.ErrTransactionNotFound
	}
	if txn.EffectApplied(effect) {
		return false, nil
	}

	prevUpdated := txn.UpdatedAt
	txn.MarkApplied(effect)
	txn.UpdatedAt = time.Now().UTC()
	t.onRollback(func() {
		switch effect {
		case domain.EffectSellerCredit:
			txn.SellerCredited = false
		case domain.EffectBatchDecrement:
			txn.BatchDecremented = false
		case domain.EffectBuyerReplenish:
			txn.BuyerReplenished = false
		}
		txn.UpdatedAt = prevUpdated
	})
	return true, nil
}

// RecordEffectFailure counts a failed attempt and keeps the message.
func (r *TransactionRepository) RecordEffectFailure(_ context.Context, paymentID, msg string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[paymentID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.ReconcileAttempts++
	txn.LastError = msg
	txn.UpdatedAt = time.Now().UTC()
	return nil
}

// ListPendingEffects returns transactions with unapplied effects, oldest first.
func (r *TransactionRepository) ListPendingEffects(_ context.Context, filter domain.PendingFilter) ([]*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, txn := range s.txns {
		if !txn.HasPendingEffects() {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !txn.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		if filter.MaxAttempts > 0 && txn.ReconcileAttempts >= filter.MaxAttempts {
			continue
		}
		c := *txn
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListByUser lists transactions where the user is buyer or seller, newest first.
func (r *TransactionRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, txn := range s.txns {
		if txn.BuyerID == userID || txn.SellerID == userID {
			c := *txn
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	start := min(offset, len(out))
	end := len(out)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return out[start:end], nil
}

// CountSoldBy counts the transactions where the user was the seller.
func (r *TransactionRepository) CountSoldBy(_ context.Context, sellerID string) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, txn := range s.txns {
		if txn.SellerID == sellerID {
			n++
		}
	}
	return n, nil
}
