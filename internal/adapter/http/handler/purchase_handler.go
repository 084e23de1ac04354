package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/domain"
)

// PurchaseService defines the behavior needed by PurchaseHandler.
type PurchaseService interface {
	CreatePurchaseIntent(ctx context.Context, buyerID string) (*domain.PaymentIntent, error)
	GetPurchaseIntent(ctx context.Context, buyerID, intentID string) (*domain.PaymentIntent, error)
}

// PurchaseHandler handles invite purchases.
type PurchaseHandler struct {
	purchases PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchases PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// Create opens a checkout for one invite bought by the caller.
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	intent, err := h.purchases.CreatePurchaseIntent(r.Context(), buyerID)
	if err != nil {
		writeDomainError(w, "failed to create purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PurchaseIntentFromDomain(intent))
}

// Get returns one of the caller's pending purchases.
func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	id := chi.URLParam(r, "id")
	if err := domain.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid purchase ID", err.Error())
		return
	}

	intent, err := h.purchases.GetPurchaseIntent(r.Context(), buyerID, id)
	if err != nil {
		writeDomainError(w, "failed to get purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PurchaseIntentFromDomain(intent))
}
