package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const batchColumns = `id, owner_id, queue_position, remaining_invites, overflow, created_at`

// BatchRepository implements usecase.BatchRepository.
type BatchRepository struct {
	db *sql.DB
}

// FindEligible returns the head of the queue.
func (r *BatchRepository) FindEligible(ctx context.Context) (*domain.Batch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches
		 WHERE remaining_invites > 0
		 ORDER BY created_at, queue_position
		 LIMIT 1`)

	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoEligibleBatch
	}
	return batch, err
}

// ListEligible returns up to limit eligible batches in queue order.
func (r *BatchRepository) ListEligible(ctx context.Context, limit int) ([]*domain.Batch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches
		 WHERE remaining_invites > 0
		 ORDER BY created_at, queue_position
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// GetByID retrieves a batch by ID.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)

	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	return batch, err
}

// Insert appends batches at the tail of the queue.
func (r *BatchRepository) Insert(ctx context.Context, tx usecase.Transaction, batches []*domain.Batch) error {
	return inTx(ctx, r.db, tx, func(q querier) error {
		return insertBatches(ctx, q, batches)
	})
}

// InsertOverflow inserts the block only when no batch is eligible once the
// write lock is held.
func (r *BatchRepository) InsertOverflow(ctx context.Context, ownerID string, batches []*domain.Batch) (int, error) {
	inserted := 0
	err := inTx(ctx, r.db, nil, func(q querier) error {
		var eligible bool
		err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE remaining_invites > 0)`).Scan(&eligible)
		if err != nil {
			return err
		}
		if eligible {
			return nil
		}

		for _, b := range batches {
			b.OwnerID = ownerID
		}
		if err := insertBatches(ctx, q, batches); err != nil {
			return err
		}
		inserted = len(batches)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DecrementInvites subtracts amount from the batch, stopping at zero.
func (r *BatchRepository) DecrementInvites(ctx context.Context, tx usecase.Transaction, id string, amount int) (bool, error) {
	var clamped bool
	err := inTx(ctx, r.db, tx, func(q querier) error {
		var before int
		err := q.QueryRowContext(ctx, `SELECT remaining_invites FROM batches WHERE id = ?`, id).Scan(&before)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrBatchNotFound
		}
		if err != nil {
			return err
		}

		_, err = q.ExecContext(ctx,
			`UPDATE batches SET remaining_invites = MAX(remaining_invites - ?, 0) WHERE id = ?`,
			amount, id)
		if err != nil {
			return err
		}
		clamped = before < amount
		return nil
	})
	return clamped, err
}

// InviteStats sums the invites left across the owner's batches.
func (r *BatchRepository) InviteStats(ctx context.Context, ownerID string) (int, error) {
	var available int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(remaining_invites), 0) FROM batches WHERE owner_id = ?`, ownerID,
	).Scan(&available)
	return available, err
}

func insertBatches(ctx context.Context, q querier, batches []*domain.Batch) error {
	for _, b := range batches {
		err := q.QueryRowContext(ctx,
			`INSERT INTO batches (id, owner_id, queue_position, remaining_invites, overflow, created_at)
			 VALUES (?, ?, (SELECT COALESCE(MAX(queue_position), 0) + 1 FROM batches), ?, ?, ?)
			 RETURNING queue_position`,
			b.ID, b.OwnerID, b.RemainingInvites, b.Overflow, toMicros(b.CreatedAt),
		).Scan(&b.QueuePosition)
		if err != nil {
			return fmt.Errorf("insert batch %s: %w", b.ID, err)
		}
	}
	return nil
}

func scanBatch(row interface{ Scan(...any) error }) (*domain.Batch, error) {
	var (
		b         domain.Batch
		createdAt int64
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.QueuePosition, &b.RemainingInvites, &b.Overflow, &createdAt); err != nil {
		return nil, err
	}
	b.CreatedAt = fromMicros(createdAt)
	return &b, nil
}
