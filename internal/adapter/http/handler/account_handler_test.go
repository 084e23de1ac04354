package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/adapter/http/middleware"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

type accountServiceStub struct {
	balanceFn func(ctx context.Context, id string) (decimal.Decimal, error)
	statsFn   func(ctx context.Context, id string) (usecase.InviteStats, error)
	listFn    func(ctx context.Context, id string, limit, offset int) ([]*domain.Transaction, error)
	payoutFn  func(ctx context.Context, id, ref string) error
	priceFn   func(ctx context.Context) (decimal.Decimal, error)
}

func (s *accountServiceStub) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	return s.balanceFn(ctx, id)
}

func (s *accountServiceStub) GetInviteStats(ctx context.Context, id string) (usecase.InviteStats, error) {
	return s.statsFn(ctx, id)
}

func (s *accountServiceStub) ListTransactions(ctx context.Context, id string, limit, offset int) ([]*domain.Transaction, error) {
	return s.listFn(ctx, id, limit, offset)
}

func (s *accountServiceStub) SetPayoutAccount(ctx context.Context, id, ref string) error {
	return s.payoutFn(ctx, id, ref)
}

func (s *accountServiceStub) GetInvitePrice(ctx context.Context) (decimal.Decimal, error) {
	return s.priceFn(ctx)
}

func asUser(req *http.Request, id string) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), &middleware.Principal{UserID: id, Role: domain.RoleMember}))
}

func TestAccountHandler_Balance(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		balanceFn: func(ctx context.Context, id string) (decimal.Decimal, error) {
			if id != "user-1" {
				t.Fatalf("unexpected user id %s", id)
			}
			return decimal.RequireFromString("150.00"), nil
		},
	})

	rec := httptest.NewRecorder()
	h.Balance(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me/balance", nil), "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.BalanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != "user-1" || !resp.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAccountHandler_RequiresPrincipal(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{})

	for name, fn := range map[string]http.HandlerFunc{
		"balance":      h.Balance,
		"invites":      h.Invites,
		"transactions": h.Transactions,
		"payout":       h.SetPayoutAccount,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAccountHandler_Balance_UserNotFound(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		balanceFn: func(ctx context.Context, id string) (decimal.Decimal, error) {
			return decimal.Zero, domain.ErrUserNotFound
		},
	})

	rec := httptest.NewRecorder()
	h.Balance(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me/balance", nil), "ghost"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAccountHandler_Invites(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		statsFn: func(ctx context.Context, id string) (usecase.InviteStats, error) {
			return usecase.InviteStats{Available: 2, Sold: 1}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Invites(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me/invites", nil), "user-1"))

	var resp dto.InviteStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Available != 2 || resp.Sold != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAccountHandler_Transactions_Pagination(t *testing.T) {
	var gotLimit, gotOffset int
	h := NewAccountHandler(&accountServiceStub{
		listFn: func(ctx context.Context, id string, limit, offset int) ([]*domain.Transaction, error) {
			gotLimit, gotOffset = limit, offset
			return []*domain.Transaction{{ID: "txn-1", Status: domain.TransactionStatusCompleted}}, nil
		},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/transactions?limit=5&offset=10", nil)
	h.Transactions(rec, asUser(req, "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != 5 || gotOffset != 10 {
		t.Fatalf("expected limit=5 offset=10, got %d %d", gotLimit, gotOffset)
	}

	var resp []dto.TransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "txn-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAccountHandler_SetPayoutAccount(t *testing.T) {
	var gotRef string
	h := NewAccountHandler(&accountServiceStub{
		payoutFn: func(ctx context.Context, id, ref string) error {
			gotRef = ref
			if ref == "taken" {
				return domain.ErrPayoutAccountTaken
			}
			return nil
		},
	})

	body, _ := json.Marshal(dto.SetPayoutAccountRequest{PayoutAccount: "acct-42"})
	rec := httptest.NewRecorder()
	h.SetPayoutAccount(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/payout-account", bytes.NewReader(body)), "user-1"))

	if rec.Code != http.StatusNoContent || gotRef != "acct-42" {
		t.Fatalf("expected 204 with ref acct-42, got %d %q", rec.Code, gotRef)
	}

	body, _ = json.Marshal(dto.SetPayoutAccountRequest{PayoutAccount: "taken"})
	rec = httptest.NewRecorder()
	h.SetPayoutAccount(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/payout-account", bytes.NewReader(body)), "user-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SetPayoutAccount(rec, asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/payout-account", bytes.NewBufferString("{")), "user-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rec.Code)
	}
}

func TestAccountHandler_InvitePrice(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		priceFn: func(ctx context.Context) (decimal.Decimal, error) {
			return decimal.RequireFromString("65.00"), nil
		},
	})

	rec := httptest.NewRecorder()
	h.InvitePrice(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invite-price", nil))

	var resp dto.InvitePriceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Price.Equal(decimal.NewFromInt(65)) {
		t.Fatalf("unexpected price: %s", resp.Price)
	}
}
