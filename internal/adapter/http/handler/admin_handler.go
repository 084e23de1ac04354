package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// UserAdmin registers users on behalf of the signup service.
type UserAdmin interface {
	RegisterUser(ctx context.Context, input usecase.RegisterUserInput) (*domain.User, error)
}

// SettingsAdmin reads and changes settings.
type SettingsAdmin interface {
	ListSettings(ctx context.Context) (map[string]decimal.Decimal, error)
	UpdateSetting(ctx context.Context, key string, value decimal.Decimal) error
}

// SettlementAdmin inspects and finishes settlements with owed effects.
type SettlementAdmin interface {
	ListPendingSettlements(ctx context.Context, limit int) ([]*domain.Transaction, error)
	ReconcilePending(ctx context.Context, filter domain.PendingFilter) (usecase.ReconcileReport, error)
	ResumeByPaymentID(ctx context.Context, paymentID string) (*domain.SettlementResult, error)
}

// QueueAdmin shows the head of the invite queue.
type QueueAdmin interface {
	QueueHead(ctx context.Context, limit int) ([]*domain.Batch, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	users       UserAdmin
	settings    SettingsAdmin
	settlements SettlementAdmin
	queue       QueueAdmin
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users UserAdmin, settings SettingsAdmin, settlements SettlementAdmin, queue QueueAdmin) *AdminHandler {
	return &AdminHandler{
		users:       users,
		settings:    settings,
		settlements: settlements,
		queue:       queue,
	}
}

// RegisterUser creates a user.
func (h *AdminHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	user, err := h.users.RegisterUser(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to register user", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.UserFromDomain(user))
}

// ListSettings lists all settings.
func (h *AdminHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	values, err := h.settings.ListSettings(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list settings", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SettingsFromMap(values))
}

// UpdateSetting replaces the value of one setting.
func (h *AdminHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))

	var req dto.UpdateSettingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.settings.UpdateSetting(r.Context(), key, req.Value); err != nil {
		writeDomainError(w, "failed to update setting", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SettingResponse{Key: key, Value: req.Value})
}

// PendingSettlements lists transactions that still owe effects.
func (h *AdminHandler) PendingSettlements(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", domain.DefaultPageSize)

	txns, err := h.settlements.ListPendingSettlements(r.Context(), limit)
	if err != nil {
		writeDomainError(w, "failed to list pending settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(txns))
}

// Reconcile resumes owed effects now. With ?payment_id= it resumes only that
// payment's transaction; otherwise it sweeps up to ?limit= transactions,
// including those the background reconciler gave up on.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if paymentID := strings.TrimSpace(r.URL.Query().Get("payment_id")); paymentID != "" {
		result, err := h.settlements.ResumeByPaymentID(r.Context(), paymentID)
		if err != nil {
			writeDomainError(w, "failed to reconcile settlement", err)
			return
		}
		writeJSON(w, http.StatusOK, dto.TransactionFromDomain(result.Transaction))
		return
	}

	limit, _ := domain.ValidatePagination(parseIntQuery(r, "limit", domain.DefaultPageSize), 0)
	report, err := h.settlements.ReconcilePending(r.Context(), domain.PendingFilter{Limit: limit})
	if err != nil {
		writeDomainError(w, "failed to reconcile settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconcileFromReport(report))
}

// QueueHead lists the next batches sellers will be allocated from.
func (h *AdminHandler) QueueHead(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 10)

	batches, err := h.queue.QueueHead(r.Context(), limit)
	if err != nil {
		writeDomainError(w, "failed to get queue head", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BatchesFromDomain(batches))
}
