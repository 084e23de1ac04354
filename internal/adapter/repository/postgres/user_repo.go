package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

const userColumns = `id, email, role, balance, COALESCE(payout_account, ''), created_at, updated_at`

// UserRepository implements usecase.UserRepository.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, role, balance, payout_account, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		string(user.Role),
		user.Balance,
		user.PayoutAccount,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapUserConstraint(err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// EnsureSystemUser inserts the system account if missing and returns it.
func (r *UserRepository) EnsureSystemUser(ctx context.Context) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, role, balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, now(), now())
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, domain.SystemUserID, domain.SystemUserEmail, string(domain.RoleMember)); err != nil {
		return nil, fmt.Errorf("ensure system user: %w", err)
	}

	return r.GetByID(ctx, domain.SystemUserID)
}

// IncrementBalance adds amount to the stored balance in place.
func (r *UserRepository) IncrementBalance(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal) error {
	q, err := querierFor(r.db, tx)
	if err != nil {
		return err
	}

	query := `UPDATE users SET balance = balance + $2, updated_at = now() WHERE id = $1`

	tag, err := q.Exec(ctx, query, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// SetPayoutAccount stores the user's payout account reference.
func (r *UserRepository) SetPayoutAccount(ctx context.Context, id, ref string) error {
	query := `UPDATE users SET payout_account = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, ref)
	if err != nil {
		return mapUserConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

func mapUserConstraint(err error) error {
	code, constraint, ok := constraintViolation(err)
	if !ok || code != codeUniqueViolation {
		return err
	}
	if constraint == "users_payout_account_key" {
		return fmt.Errorf("%w: %w", domain.ErrPayoutAccountTaken, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrUserAlreadyExists, err)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&role,
		&user.Balance,
		&user.PayoutAccount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)

	return &user, nil
}
