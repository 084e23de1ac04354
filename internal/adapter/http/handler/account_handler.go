package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// AccountService defines the behavior needed by AccountHandler.
type AccountService interface {
	GetBalance(ctx context.Context, id string) (decimal.Decimal, error)
	GetInviteStats(ctx context.Context, id string) (usecase.InviteStats, error)
	ListTransactions(ctx context.Context, id string, limit, offset int) ([]*domain.Transaction, error)
	SetPayoutAccount(ctx context.Context, id, ref string) error
	GetInvitePrice(ctx context.Context) (decimal.Decimal, error)
}

// AccountHandler serves the caller's own account views and the public price.
type AccountHandler struct {
	accounts AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// InvitePrice returns the current price of one invite.
func (h *AccountHandler) InvitePrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.accounts.GetInvitePrice(r.Context())
	if err != nil {
		writeDomainError(w, "failed to get invite price", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvitePriceResponse{Price: price})
}

// Balance returns the caller's balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	balance, err := h.accounts.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: id, Balance: balance})
}

// Invites returns how many invites the caller can sell and has sold.
func (h *AccountHandler) Invites(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	stats, err := h.accounts.GetInviteStats(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get invites", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InviteStatsFromUseCase(stats))
}

// Transactions lists purchases and sales of the caller.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	limit := parseIntQuery(r, "limit", domain.DefaultPageSize)
	offset := parseIntQuery(r, "offset", 0)

	txns, err := h.accounts.ListTransactions(r.Context(), id, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(txns))
}

// SetPayoutAccount links the caller's external payout account.
func (h *AccountHandler) SetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	var req dto.SetPayoutAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.accounts.SetPayoutAccount(r.Context(), id, req.PayoutAccount); err != nil {
		writeDomainError(w, "failed to set payout account", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
