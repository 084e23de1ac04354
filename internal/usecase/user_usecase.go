package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// UserUseCase serves account views and admin user registration.
type UserUseCase struct {
	userRepo     UserRepository
	batchRepo    BatchRepository
	txnRepo      TransactionRepository
	settingsRepo SettingsRepository
	idGen        IDGenerator
}

// NewUserUseCase creates a new user use case
func NewUserUseCase(
	userRepo UserRepository,
	batchRepo BatchRepository,
	txnRepo TransactionRepository,
	settingsRepo SettingsRepository,
	idGen IDGenerator,
) *UserUseCase {
	return &UserUseCase{
		userRepo:     userRepo,
		batchRepo:    batchRepo,
		txnRepo:      txnRepo,
		settingsRepo: settingsRepo,
		idGen:        idGen,
	}
}

// RegisterUserInput represents input for registering a user
type RegisterUserInput struct {
	Email         string
	Role          domain.Role
	PayoutAccount string
}

// RegisterUser creates a user with a zero balance. Users start without a
// batch; they join the queue by buying an invite.
func (uc *UserUseCase) RegisterUser(ctx context.Context, input RegisterUserInput) (*domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}

	if input.PayoutAccount != "" {
		if err := domain.ValidatePayoutAccount(input.PayoutAccount); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:            uc.idGen.Generate(),
		Email:         email,
		Role:          role,
		Balance:       decimal.Zero,
		PayoutAccount: strings.TrimSpace(input.PayoutAccount),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser retrieves a user by ID
func (uc *UserUseCase) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return uc.userRepo.GetByID(ctx, id)
}

// GetBalance returns the accumulated seller proceeds of a user.
func (uc *UserUseCase) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	user, err := uc.userRepo.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// InviteStats counts a user's invites.
type InviteStats struct {
	Available int
	Sold      int
}

// GetInviteStats returns how many invites a user can still sell and how
// many they sold.
func (uc *UserUseCase) GetInviteStats(ctx context.Context, id string) (InviteStats, error) {
	if _, err := uc.userRepo.GetByID(ctx, id); err != nil {
		return InviteStats{}, err
	}

	available, err := uc.batchRepo.InviteStats(ctx, id)
	if err != nil {
		return InviteStats{}, err
	}

	sold, err := uc.txnRepo.CountSoldBy(ctx, id)
	if err != nil {
		return InviteStats{}, err
	}

	return InviteStats{Available: available, Sold: sold}, nil
}

// ListTransactions lists transactions where the user bought or sold.
func (uc *UserUseCase) ListTransactions(ctx context.Context, id string, limit, offset int) ([]*domain.Transaction, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.txnRepo.ListByUser(ctx, id, limit, offset)
}

// SetPayoutAccount links the external account that receives payouts.
func (uc *UserUseCase) SetPayoutAccount(ctx context.Context, id, ref string) error {
	if err := domain.ValidatePayoutAccount(ref); err != nil {
		return err
	}
	return uc.userRepo.SetPayoutAccount(ctx, id, strings.TrimSpace(ref))
}

// GetInvitePrice returns the current price of one invite.
func (uc *UserUseCase) GetInvitePrice(ctx context.Context) (decimal.Decimal, error) {
	return readSetting(ctx, uc.settingsRepo, domain.SettingInvitePrice)
}
