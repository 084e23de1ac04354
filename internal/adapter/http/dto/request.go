package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// RegisterUserRequest represents a request to register a user.
type RegisterUserRequest struct {
	Email         string `json:"email"`
	Role          string `json:"role,omitempty"`
	PayoutAccount string `json:"payout_account,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterUserRequest) ToUseCaseInput() usecase.RegisterUserInput {
	return usecase.RegisterUserInput{
		Email:         r.Email,
		Role:          domain.Role(r.Role),
		PayoutAccount: r.PayoutAccount,
	}
}

// SetPayoutAccountRequest links an external payout account.
type SetPayoutAccountRequest struct {
	PayoutAccount string `json:"payout_account"`
}

// UpdateSettingRequest replaces the value of one setting.
type UpdateSettingRequest struct {
	Value decimal.Decimal `json:"value"`
}
