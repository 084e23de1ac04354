package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const transactionColumns = `id, payment_id, intent_id, buyer_id, seller_id, batch_id,
	amount_cents, split_to_seller_cents, split_to_system_cents, status,
	seller_credited, batch_decremented, buyer_replenished,
	reconcile_attempts, last_error, created_at, updated_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db *sql.DB
}

// InsertIfAbsent inserts txn unless its payment id is already recorded.
func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (bool, *domain.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (payment_id) DO NOTHING`,
		txn.ID, txn.PaymentID, txn.IntentID, txn.BuyerID, txn.SellerID, txn.BatchID,
		toCents(txn.Amount), toCents(txn.SplitToSeller), toCents(txn.SplitToSystem), string(txn.Status),
		txn.SellerCredited, txn.BatchDecremented, txn.BuyerReplenished,
		txn.ReconcileAttempts, txn.LastError, toMicros(txn.CreatedAt), toMicros(txn.UpdatedAt),
	)
	if err != nil {
		return false, nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if n == 1 {
		return true, nil, nil
	}

	existing, err := r.GetByPaymentID(ctx, txn.PaymentID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// GetByPaymentID retrieves a transaction by gateway payment id.
func (r *TransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE payment_id = ?`, paymentID)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, err
}

// MarkEffectApplied flips the effect flag if it is still unset.
func (r *TransactionRepository) MarkEffectApplied(ctx context.Context, tx usecase.Transaction, paymentID string, effect domain.SettlementEffect) (bool, error) {
	if !effect.IsValid() {
		return false, fmt.Errorf("%w: unknown effect %q", domain.ErrInvariantViolation, effect)
	}

	column := string(effect)
	var flipped bool
	err := inTx(ctx, r.db, tx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE transactions SET %s = 1, updated_at = ? WHERE payment_id = ? AND %s = 0`, column, column),
			nowMicros(), paymentID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		flipped = n == 1
		return err
	})
	return flipped, err
}

// RecordEffectFailure bumps the attempt counter and keeps the last error.
func (r *TransactionRepository) RecordEffectFailure(ctx context.Context, paymentID, msg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET reconcile_attempts = reconcile_attempts + 1, last_error = ?, updated_at = ?
		 WHERE payment_id = ?`,
		msg, nowMicros(), paymentID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ListPendingEffects returns transactions with owed effects, oldest first.
func (r *TransactionRepository) ListPendingEffects(ctx context.Context, filter domain.PendingFilter) ([]*domain.Transaction, error) {
	var updatedBefore int64
	if !filter.UpdatedBefore.IsZero() {
		updatedBefore = toMicros(filter.UpdatedBefore)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE NOT (seller_credited AND batch_decremented AND buyer_replenished)
		   AND (? = 0 OR updated_at < ?)
		   AND (? = 0 OR reconcile_attempts < ?)
		 ORDER BY created_at
		 LIMIT ?`,
		updatedBefore, updatedBefore, filter.MaxAttempts, filter.MaxAttempts, limit,
	)
}

// ListByUser returns transactions where the user bought or sold, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE buyer_id = ? OR seller_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID, userID, limit, offset,
	)
}

// CountSoldBy counts the invites the user sold.
func (r *TransactionRepository) CountSoldBy(ctx context.Context, sellerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE seller_id = ?`, sellerID).Scan(&count)
	return count, err
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		txn                        domain.Transaction
		status                     string
		amount, toSeller, toSystem int64
		createdAt, updatedAt       int64
	)
	err := row.Scan(
		&txn.ID, &txn.PaymentID, &txn.IntentID, &txn.BuyerID, &txn.SellerID, &txn.BatchID,
		&amount, &toSeller, &toSystem, &status,
		&txn.SellerCredited, &txn.BatchDecremented, &txn.BuyerReplenished,
		&txn.ReconcileAttempts, &txn.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount = fromCents(amount)
	txn.SplitToSeller = fromCents(toSeller)
	txn.SplitToSystem = fromCents(toSystem)
	txn.Status = domain.TransactionStatus(status)
	txn.CreatedAt = fromMicros(createdAt)
	txn.UpdatedAt = fromMicros(updatedAt)

	return &txn, nil
}
