package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/adapter/http/dto"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// PaymentService defines the behavior needed by PaymentHandler.
type PaymentService interface {
	ConfirmPayment(ctx context.Context, n usecase.Notification) (*usecase.ConfirmResult, error)
}

// PaymentHandler receives gateway webhooks.
type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Notify settles the notified payment. It answers 2xx only once the
// settlement is durable; a 5xx makes the gateway deliver again.
func (h *PaymentHandler) Notify(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var req dto.PaymentNotificationRequest
	if len(bytes.TrimSpace(body)) == 0 {
		req = dto.NotificationFromQuery(r.URL.Query())
	} else if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	n, err := req.ToNotification()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification", err.Error())
		return
	}

	result, err := h.payments.ConfirmPayment(r.Context(), n)
	if err != nil {
		status := mapNotificationError(err)
		event := log.Warn()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Err(err).Str("payment_id", n.PaymentID).Int("status", status).Msg("payment notification failed")

		details := err.Error()
		if status >= http.StatusInternalServerError {
			details = ""
		}
		writeError(w, status, "failed to process notification", details)
		return
	}

	writeJSON(w, http.StatusOK, dto.NotificationFromResult(result))
}

// mapNotificationError only lets malformed and unsettleable notifications
// through as 4xx. Every other failure is a 500 so the gateway retries.
func mapNotificationError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPaymentEnvelope),
		errors.Is(err, domain.ErrInvalidSettlement):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
