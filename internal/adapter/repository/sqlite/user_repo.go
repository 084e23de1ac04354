package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const userColumns = `id, email, role, balance_cents, COALESCE(payout_account, ''), created_at, updated_at`

// UserRepository implements usecase.UserRepository.
type UserRepository struct {
	db *sql.DB
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, role, balance_cents, payout_account, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		user.ID, user.Email, string(user.Role), toCents(user.Balance), user.PayoutAccount,
		toMicros(user.CreatedAt), toMicros(user.UpdatedAt),
	)
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err, "users.payout_account"):
		return fmt.Errorf("%w: %w", domain.ErrPayoutAccountTaken, err)
	case uniqueViolation(err, ""):
		return fmt.Errorf("%w: %w", domain.ErrUserAlreadyExists, err)
	}
	return err
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// EnsureSystemUser inserts the system account if missing and returns it.
func (r *UserRepository) EnsureSystemUser(ctx context.Context) (*domain.User, error) {
	now := nowMicros()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, role, balance_cents, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		domain.SystemUserID, domain.SystemUserEmail, string(domain.RoleMember), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure system user: %w", err)
	}

	return r.GetByID(ctx, domain.SystemUserID)
}

// IncrementBalance adds amount to the stored balance in place.
func (r *UserRepository) IncrementBalance(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal) error {
	return inTx(ctx, r.db, tx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			`UPDATE users SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?`,
			toCents(amount), nowMicros(), id,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// SetPayoutAccount stores the user's payout account reference.
func (r *UserRepository) SetPayoutAccount(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET payout_account = ?, updated_at = ? WHERE id = ?`,
		ref, nowMicros(), id,
	)
	if uniqueViolation(err, "users.payout_account") {
		return fmt.Errorf("%w: %w", domain.ErrPayoutAccountTaken, err)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		user                 domain.User
		role                 string
		balance              int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&user.ID, &user.Email, &role, &balance, &user.PayoutAccount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.Balance = fromCents(balance)
	user.CreatedAt = fromMicros(createdAt)
	user.UpdatedAt = fromMicros(updatedAt)

	return &user, nil
}
