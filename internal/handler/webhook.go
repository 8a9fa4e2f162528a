package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"checkout-relay/internal/model"
	"checkout-relay/internal/webhook"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

// handleWebhook verifies and processes a processor callback. The raw body is
// passed through untouched since the signature covers its exact bytes.
// POST /webhooks/payments
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, model.NewValidationError("body", "payload too large"))
			return
		}
		h.writeError(w, r, model.NewValidationError("body", "unreadable payload"))
		return
	}

	ack, err := h.deps.Webhooks.HandleWebhook(ctx, payload, r.Header.Get(SignatureHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "webhook acknowledged",
		slog.String("event_type", ack.EventType),
		slog.String("status", ack.Status),
		slog.String("session_id", ack.SessionID),
	)
	h.writeJSON(w, http.StatusOK, ack)
}

type createOrderResponse struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleCreateOrder creates the order for a paid session on request of the
// checkout page. It races safely with webhook delivery.
// POST /shopify/create-order
func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req webhook.ManualRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeCreateOrderError(w, r, err)
		return
	}

	ack, err := h.deps.Webhooks.CreateOrderManually(ctx, req)
	if err != nil {
		h.writeCreateOrderError(w, r, err)
		return
	}

	resp := createOrderResponse{
		Status:      ack.Status,
		OrderID:     ack.OrderID,
		OrderNumber: ack.OrderNumber,
	}
	switch ack.Status {
	case webhook.StatusProcessed, webhook.StatusAlreadyProcessed:
		resp.OK = true
		h.writeJSON(w, http.StatusOK, resp)
	case webhook.StatusInProgress:
		resp.Error = "order creation in progress"
		h.writeJSON(w, http.StatusAccepted, resp)
	default:
		resp.Error = ack.Error
		h.writeJSON(w, http.StatusBadGateway, resp)
	}
}

func (h *Handler) writeCreateOrderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := h.toAPIError(r.Context(), err)
	h.writeJSON(w, apiErr.StatusCode, createOrderResponse{OK: false, Error: apiErr.Message})
}
