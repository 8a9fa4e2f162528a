package handler

import (
	"log/slog"
	"net/http"

	"checkout-relay/internal/model"
	"checkout-relay/internal/payment"
)

type paymentIntentRequest struct {
	SessionID     string          `json:"sessionId" validate:"required"`
	Customer      *model.Customer `json:"customer,omitempty"`
	ShippingCents int64           `json:"shippingCents,omitempty" validate:"gte=0"`
}

// handlePaymentIntent returns a client secret for the session's payment.
// POST /payment-intent
func (h *Handler) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req paymentIntentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "ensuring payment intent",
		slog.String("session_id", req.SessionID),
		slog.Bool("has_customer", req.Customer != nil),
		slog.Int64("shipping_override_cents", req.ShippingCents),
	)

	res, err := h.deps.Payments.EnsurePaymentIntent(ctx, payment.EnsureRequest{
		SessionID:     req.SessionID,
		Customer:      req.Customer,
		ShippingCents: req.ShippingCents,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

type hostedCheckoutRequest struct {
	SessionID  string `json:"sessionId" validate:"required"`
	SuccessURL string `json:"successUrl,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancelUrl,omitempty" validate:"omitempty,url"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

// handleHostedCheckout creates a processor-hosted payment page.
// POST /checkout-session
func (h *Handler) handleHostedCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req hostedCheckoutRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.deps.Payments.CreateHostedCheckout(ctx, payment.HostedRequest{
		SessionID:  req.SessionID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Email:      req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "hosted checkout created",
		slog.String("session_id", req.SessionID),
		slog.String("checkout_id", res.CheckoutID),
		slog.String("account", res.Account),
	)
	h.writeJSON(w, http.StatusCreated, res)
}

type upsellChargeRequest struct {
	SessionID string           `json:"sessionId" validate:"required"`
	Items     []model.LineItem `json:"items" validate:"required,min=1"`
}

// handleUpsellCharge charges post-purchase add-ons off-session.
// POST /upsell-charge
func (h *Handler) handleUpsellCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req upsellChargeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.deps.Payments.ChargeUpsell(ctx, payment.UpsellRequest{
		SessionID: req.SessionID,
		Items:     req.Items,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}
