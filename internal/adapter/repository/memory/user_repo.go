package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// UserRepository implements usecase.UserRepository.
type UserRepository struct {
	store *Store
}

// Create inserts a new user.
func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createUser(user)
}

func (s *Store) createUser(user *domain.User) error {
	if _, exists := s.users[user.ID]; exists {
		return domain.ErrUserAlreadyExists
	}
	if _, exists := s.emails[user.Email]; exists {
		return domain.ErrUserAlreadyExists
	}
	if user.PayoutAccount != "" {
		if _, taken := s.payouts[user.PayoutAccount]; taken {
			return domain.ErrPayoutAccountTaken
		}
		s.payouts[user.PayoutAccount] = user.ID
	}

	u := *user
	s.users[u.ID] = &u
	s.emails[u.Email] = u.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// EnsureSystemUser creates the system account if it does not exist.
func (r *UserRepository) EnsureSystemUser(_ context.Context) (*domain.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[domain.SystemUserID]; ok {
		out := *u
		return &out, nil
	}

	u := domain.NewSystemUser(time.Now().UTC())
	if err := s.createUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// IncrementBalance adds amount to the user's balance.
func (r *UserRepository) IncrementBalance(_ context.Context, tx usecase.Transaction, id string, amount decimal.Decimal) error {
	t, err := r.store.own(tx)
	if err != nil {
		return err
	}

	u, ok := r.store.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}

	prevBalance, prevUpdated := u.Balance, u.UpdatedAt
	u.Balance = u.Balance.Add(amount)
	u.UpdatedAt = time.Now().UTC()
	t.onRollback(func() {
		u.Balance = prevBalance
		u.UpdatedAt = prevUpdated
	})
	return nil
}

// SetPayoutAccount links ref to the user.
func (r *UserRepository) SetPayoutAccount(_ context.Context, id, ref string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := s.payouts[ref]; taken && owner != id {
		return domain.ErrPayoutAccountTaken
	}

	if u.PayoutAccount != "" {
		delete(s.payouts, u.PayoutAccount)
	}
	s.payouts[ref] = id
	u.PayoutAccount = ref
	u.UpdatedAt = time.Now().UTC()
	return nil
}
