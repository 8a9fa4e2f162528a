// Package handler provides the HTTP API of the checkout relay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"checkout-relay/internal/commerce"
	"checkout-relay/internal/model"
	"checkout-relay/internal/payment"
	"checkout-relay/internal/store"
	"checkout-relay/internal/webhook"
)

// Payments is the payment side of checkout.
type Payments interface {
	EnsurePaymentIntent(ctx context.Context, req payment.EnsureRequest) (*payment.EnsureResult, error)
	CreateHostedCheckout(ctx context.Context, req payment.HostedRequest) (*payment.HostedResult, error)
	ChargeUpsell(ctx context.Context, req payment.UpsellRequest) (*payment.UpsellResult, error)
}

// Webhooks turns confirmed payments into orders.
type Webhooks interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*webhook.Ack, error)
	CreateOrderManually(ctx context.Context, req webhook.ManualRequest) (*webhook.Ack, error)
}

// Discounts resolves storefront discount codes.
type Discounts interface {
	LookupDiscount(ctx context.Context, shop model.ShopSettings, code string) (*commerce.Discount, error)
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Payments  Payments
	Webhooks  Webhooks
	Discounts Discounts
	Sessions  store.SessionStore
	Settings  store.SettingsStore
	Stats     store.StatsStore
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Handler.
func New(deps Deps, logger *slog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		deps:     deps,
		validate: v,
		now:      time.Now,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Checkout page
	mux.HandleFunc("POST /payment-intent", h.handlePaymentIntent)
	mux.HandleFunc("POST /checkout-session", h.handleHostedCheckout)
	mux.HandleFunc("POST /upsell-charge", h.handleUpsellCharge)
	mux.HandleFunc("GET /order-status", h.handleOrderStatus)
	mux.HandleFunc("GET /discount", h.handleDiscount)

	// Storefront cart snapshot
	mux.HandleFunc("GET /cart-session", h.handleGetCartSession)
	mux.HandleFunc("POST /cart-session", h.handlePutCartSession)

	// Processor callbacks and order creation
	mux.HandleFunc("POST /webhooks/payments", h.handleWebhook)
	mux.HandleFunc("POST /shopify/create-order", h.handleCreateOrder)

	// Operator
	mux.HandleFunc("GET /config", h.handleGetConfig)
	mux.HandleFunc("POST /config", h.handleUpdateConfig)
	mux.HandleFunc("GET /stats", h.handleStats)

	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := h.toAPIError(r.Context(), err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// toAPIError finds the APIError in err's chain. Anything else is logged and
// reported as an internal error without details.
func (h *Handler) toAPIError(ctx context.Context, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.ErrorContext(ctx, "internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits request bodies, webhook payloads included.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from the request body into v and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "invalid JSON")
	}
	return h.validateStruct(v)
}

func (h *Handler) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if ns := fe.Namespace(); strings.Contains(ns, ".") {
			field = ns[strings.Index(ns, ".")+1:]
		}
		return model.NewValidationError(field, "failed "+fe.Tag()+" check")
	}
	return model.NewValidationError("body", err.Error())
}

// loadSettings returns the current settings document.
func (h *Handler) loadSettings(ctx context.Context) (*model.Settings, error) {
	return store.LoadSettings(ctx, h.deps.Settings)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
