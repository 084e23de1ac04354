package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const batchColumns = `id, owner_id, queue_position, remaining_invites, overflow, created_at`

// overflowLockKey serializes overflow inserts across processes.
const overflowLockKey int64 = 0x696e7669746571

// BatchRepository implements usecase.BatchRepository.
type BatchRepository struct {
	db DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindEligible returns the head of the queue.
func (r *BatchRepository) FindEligible(ctx context.Context) (*domain.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE remaining_invites > 0
		ORDER BY created_at, queue_position
		LIMIT 1
	`

	batch, err := scanBatch(r.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoEligibleBatch
	}
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// ListEligible returns up to limit eligible batches in queue order.
func (r *BatchRepository) ListEligible(ctx context.Context, limit int) ([]*domain.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE remaining_invites > 0
		ORDER BY created_at, queue_position
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
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
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	batch, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// Insert appends batches at the tail of the queue.
func (r *BatchRepository) Insert(ctx context.Context, tx usecase.Transaction, batches []*domain.Batch) error {
	q, err := querierFor(r.db, tx)
	if err != nil {
		return err
	}

	return insertBatches(ctx, q, batches)
}

// InsertOverflow inserts the block only when the queue is still empty once
// the overflow lock is held.
func (r *BatchRepository) InsertOverflow(ctx context.Context, ownerID string, batches []*domain.Batch) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, overflowLockKey); err != nil {
		return 0, fmt.Errorf("acquire overflow lock: %w", err)
	}

	var eligible bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE remaining_invites > 0)`).Scan(&eligible)
	if err != nil {
		return 0, err
	}
	if eligible {
		return 0, nil
	}

	for _, b := range batches {
		b.OwnerID = ownerID
	}
	if err := insertBatches(ctx, tx, batches); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return len(batches), nil
}

// DecrementInvites subtracts amount from the batch, stopping at zero.
func (r *BatchRepository) DecrementInvites(ctx context.Context, tx usecase.Transaction, id string, amount int) (bool, error) {
	q, err := querierFor(r.db, tx)
	if err != nil {
		return false, err
	}

	query := `
		WITH prev AS (
			SELECT id, remaining_invites FROM batches WHERE id = $1 FOR UPDATE
		)
		UPDATE batches b
		SET remaining_invites = GREATEST(prev.remaining_invites - $2, 0)
		FROM prev
		WHERE b.id = prev.id
		RETURNING prev.remaining_invites
	`

	var before int
	err = q.QueryRow(ctx, query, id, amount).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrBatchNotFound
	}
	if err != nil {
		return false, err
	}

	return before < amount, nil
}

// InviteStats sums the invites left across the owner's batches.
func (r *BatchRepository) InviteStats(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT COALESCE(SUM(remaining_invites), 0)::bigint FROM batches WHERE owner_id = $1`

	var available int
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&available); err != nil {
		return 0, err
	}

	return available, nil
}

func insertBatches(ctx context.Context, q querier, batches []*domain.Batch) error {
	query := `
		INSERT INTO batches (id, owner_id, remaining_invites, overflow, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING queue_position
	`

	for _, b := range batches {
		err := q.QueryRow(ctx, query, b.ID, b.OwnerID, b.RemainingInvites, b.Overflow, b.CreatedAt).
			Scan(&b.QueuePosition)
		if err != nil {
			return fmt.Errorf("insert batch %s: %w", b.ID, err)
		}
	}

	return nil
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.QueuePosition,
		&b.RemainingInvites,
		&b.Overflow,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &b, nil
}
