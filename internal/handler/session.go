package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"checkout-relay/internal/model"
	"checkout-relay/internal/store"
)

// sessionView is the client-facing projection of a checkout session.
type sessionView struct {
	SessionID     string            `json:"sessionId"`
	Currency      string            `json:"currency"`
	SubtotalCents int64             `json:"subtotalCents"`
	ShippingCents int64             `json:"shippingCents"`
	TotalCents    int64             `json:"totalCents"`
	Items         []model.LineItem  `json:"items"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Customer      *model.Customer   `json:"customer,omitempty"`
	PaymentStatus string            `json:"paymentStatus,omitempty"`
	OrderNumber   string            `json:"orderNumber,omitempty"`
}

func newSessionView(s *model.CheckoutSession) sessionView {
	return sessionView{
		SessionID:     s.SessionID,
		Currency:      s.Currency,
		SubtotalCents: s.SubtotalCents,
		ShippingCents: s.ShippingCents,
		TotalCents:    s.TotalCents,
		Items:         s.Items,
		Attributes:    s.Attributes,
		Customer:      s.Customer,
		PaymentStatus: s.PaymentStatus,
		OrderNumber:   s.ShopifyOrderNumber,
	}
}

// handleGetCartSession returns the stored snapshot.
// GET /cart-session?sessionId=
func (h *Handler) handleGetCartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		h.writeError(w, r, model.NewValidationError("sessionId", "required"))
		return
	}

	sess, err := h.deps.Sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, model.NewSessionNotFoundError(id))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSessionView(sess))
}

type putSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// handlePutCartSession stores a cart snapshot. A new session id is issued
// unless the client resubmits one it was given earlier; resubmission replaces
// the cart but keeps payment references so the intent is updated in place.
// POST /cart-session
func (h *Handler) handlePutCartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var snap model.Snapshot
	if err := h.decodeJSON(w, r, &snap); err != nil {
		h.writeError(w, r, err)
		return
	}
	if snap.SessionID != "" {
		if _, err := uuid.Parse(snap.SessionID); err != nil {
			h.writeError(w, r, model.NewValidationError("sessionId", "must be a UUID"))
			return
		}
	}

	settings, err := h.loadSettings(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fresh := snapshotSession(&snap, settings.DefaultCurrency)
	fresh.ClientIP = clientIP(r)
	fresh.UserAgent = r.UserAgent()

	if snap.SessionID == "" {
		fresh.SessionID = uuid.NewString()
		fresh.CreatedAt = h.now().UTC()
		if err := h.deps.Sessions.PutSession(ctx, fresh); err != nil {
			h.writeError(w, r, err)
			return
		}
	} else {
		fresh.SessionID = snap.SessionID
		_, err := h.deps.Sessions.UpdateSession(ctx, snap.SessionID, func(cur *model.CheckoutSession) error {
			if cur.HasOrder() {
				return model.NewConflictError("session already has an order")
			}
			replaceCart(cur, fresh)
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			fresh.CreatedAt = h.now().UTC()
			err = h.deps.Sessions.PutSession(ctx, fresh)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	h.logger.InfoContext(ctx, "cart snapshot stored",
		slog.String("session_id", fresh.SessionID),
		slog.Int("items", len(fresh.Items)),
		slog.Int64("total_cents", fresh.TotalCents),
	)
	h.writeJSON(w, http.StatusOK, putSessionResponse{SessionID: fresh.SessionID})
}

func snapshotSession(snap *model.Snapshot, defaultCurrency string) *model.CheckoutSession {
	return &model.CheckoutSession{
		Currency:      model.NormalizeCurrency(snap.Currency, defaultCurrency),
		SubtotalCents: snap.SubtotalCents,
		ShippingCents: snap.ShippingCents,
		TotalCents:    snap.TotalCents,
		Items:         snap.Items,
		CartToken:     snap.CartToken,
		Attributes:    snap.Attributes,
		SourceURL:     snap.SourceURL,
	}
}

func replaceCart(cur, next *model.CheckoutSession) {
	cur.Currency = next.Currency
	cur.SubtotalCents = next.SubtotalCents
	cur.ShippingCents = next.ShippingCents
	cur.TotalCents = next.TotalCents
	cur.Items = next.Items
	cur.CartToken = next.CartToken
	cur.Attributes = next.Attributes
	cur.SourceURL = next.SourceURL
	cur.ClientIP = next.ClientIP
	cur.UserAgent = next.UserAgent
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type orderStatusResponse struct {
	SessionID     string `json:"sessionId"`
	PaymentStatus string `json:"paymentStatus"`
	OrderID       string `json:"orderId,omitempty"`
	OrderNumber   string `json:"orderNumber,omitempty"`
	OrderError    string `json:"orderError,omitempty"`
	UpsellStatus  string `json:"upsellStatus,omitempty"`
}

// handleOrderStatus reports payment and order progress for the thank-you page.
// GET /order-status?sessionId=
func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		h.writeError(w, r, model.NewValidationError("sessionId", "required"))
		return
	}

	sess, err := h.deps.Sessions.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, model.NewSessionNotFoundError(id))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderStatus(sess))
}

func orderStatus(s *model.CheckoutSession) orderStatusResponse {
	status := s.PaymentStatus
	if status == "" {
		status = "pending"
	}
	return orderStatusResponse{
		SessionID:     s.SessionID,
		PaymentStatus: status,
		OrderID:       s.ShopifyOrderID,
		OrderNumber:   s.ShopifyOrderNumber,
		OrderError:    s.OrderError,
		UpsellStatus:  s.UpsellStatus,
	}
}
