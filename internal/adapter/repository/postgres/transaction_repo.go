package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const transactionColumns = `id, payment_id, intent_id, buyer_id, seller_id, batch_id,
	amount, split_to_seller, split_to_system, status,
	seller_credited, batch_decremented, buyer_replenished,
	reconcile_attempts, last_error, created_at, updated_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertIfAbsent inserts txn unless its payment id is already recorded.
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (bool, *domain.Transaction, error) {
	query := `
		INSERT INTO transactions (
			id, payment_id, intent_id, buyer_id, seller_id, batch_id,
			amount, split_to_seller, split_to_system, status,
			seller_credited, batch_decremented, buyer_replenished,
			reconcile_attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.QueryRow(ctx, query,
		txn.ID,
		txn.PaymentID,
		txn.IntentID,
		txn.BuyerID,
		txn.SellerID,
		txn.BatchID,
		txn.Amount,
		txn.SplitToSeller,
		txn.SplitToSystem,
		string(txn.Status),
		txn.SellerCredited,
		txn.BatchDecremented,
		txn.BuyerReplenished,
		txn.ReconcileAttempts,
		txn.LastError,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetByPaymentID(ctx, txn.PaymentID)
		if err != nil {
			return false, nil, err
		}
		return false, existing, nil
	}
	if err != nil {
		return false, nil, err
	}

	return true, nil, nil
}

// GetByPaymentID retrieves a transaction by gateway payment id.
func (r *TransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_id = $1`

	txn, err := scanTransaction(r.db.QueryRow(ctx, query, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// MarkEffectApplied flips the effect flag if it is still unset.
func (r *TransactionRepository) MarkEffectApplied(ctx context.Context, tx usecase.Transaction, paymentID string, effect domain.SettlementEffect) (bool, error) {
	if !effect.IsValid() {
		return false, fmt.Errorf("%w: unknown effect %q", domain.ErrInvariantViolation, effect)
	}

	q, err := querierFor(r.db, tx)
	if err != nil {
		return false, err
	}

	column := string(effect)
	query := fmt.Sprintf(
		`UPDATE transactions SET %s = TRUE, updated_at = now() WHERE payment_id = $1 AND NOT %s`,
		column, column,
	)

	tag, err := q.Exec(ctx, query, paymentID)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// RecordEffectFailure bumps the attempt counter and keeps the last error.
func (r *TransactionRepository) RecordEffectFailure(ctx context.Context, paymentID, msg string) error {
	query := `
		UPDATE transactions
		SET reconcile_attempts = reconcile_attempts + 1, last_error = $2, updated_at = now()
		WHERE payment_id = $1
	`

	tag, err := r.db.Exec(ctx, query, paymentID, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// ListPendingEffects returns transactions with owed effects, oldest first.
func (r *TransactionRepository) ListPendingEffects(ctx context.Context, filter domain.PendingFilter) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE NOT (seller_credited AND batch_decremented AND buyer_replenished)
			AND ($1::timestamptz IS NULL OR updated_at < $1)
			AND ($2::int = 0 OR reconcile_attempts < $2)
		ORDER BY created_at
		LIMIT NULLIF($3::int, 0)
	`

	var updatedBefore *time.Time
	if !filter.UpdatedBefore.IsZero() {
		updatedBefore = &filter.UpdatedBefore
	}

	return r.queryTransactions(ctx, query, updatedBefore, filter.MaxAttempts, filter.Limit)
}

// ListByUser returns transactions where the user bought or sold, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryTransactions(ctx, query, userID, limit, offset)
}

// CountSoldBy counts the invites the user sold.
func (r *TransactionRepository) CountSoldBy(ctx context.Context, sellerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE seller_id = $1`, sellerID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		status string
	)
	err := row.Scan(
		&txn.ID,
		&txn.PaymentID,
		&txn.IntentID,
		&txn.BuyerID,
		&txn.SellerID,
		&txn.BatchID,
		&txn.Amount,
		&txn.SplitToSeller,
		&txn.SplitToSystem,
		&status,
		&txn.SellerCredited,
		&txn.BatchDecremented,
		&txn.BuyerReplenished,
		&txn.ReconcileAttempts,
		&txn.LastError,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Status = domain.TransactionStatus(status)

	return &txn, nil
}
