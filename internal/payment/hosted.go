package payment

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"checkout-relay/internal/model"
	"checkout-relay/internal/processor"
	"checkout-relay/internal/store"
)

// HostedRequest asks for a processor-hosted payment page for a session.
type HostedRequest struct {
	SessionID  string
	SuccessURL string
	CancelURL  string
	Email      string
}

// HostedResult is the page the shopper is redirected to.
type HostedResult struct {
	CheckoutID string `json:"checkoutId"`
	URL        string `json:"url"`
	Account    string `json:"-"`
}

// CreateHostedCheckout creates a hosted payment page using the round-robin
// strategy. It never consults the LRU rotator.
func (o *Orchestrator) CreateHostedCheckout(ctx context.Context, req HostedRequest) (*HostedResult, error) {
	sess, err := o.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ComputeTotal(sess, 0) <= 0 {
		return nil, model.NewInvalidAmountError(ComputeTotal(sess, 0))
	}

	settings, err := store.LoadSettings(ctx, o.settings)
	if err != nil {
		return nil, err
	}
	acct, err := o.roundRobin.Next(ctx, settings.Accounts)
	if err != nil {
		return nil, err
	}

	successURL, cancelURL := req.SuccessURL, req.CancelURL
	if successURL == "" {
		successURL = o.returnURL("/thank-you", sess.SessionID)
	}
	if cancelURL == "" {
		cancelURL = o.returnURL("/checkout", sess.SessionID)
	}
	if successURL == "" || cancelURL == "" {
		return nil, model.NewValidationError("successUrl", "required when no public base URL is configured")
	}

	shippingTitle := settings.ShippingTitle
	if shippingTitle == "" {
		shippingTitle = "Shipping"
	}
	email := req.Email
	if email == "" {
		email = emailOf(sess.Customer)
	}

	hc, err := o.gateway.CreateHostedCheckout(ctx, acct, processor.HostedCheckoutRequest{
		Currency:      model.NormalizeCurrency(sess.Currency, o.defaultCurrency(settings)),
		Items:         sess.Items,
		ShippingCents: sess.ShippingCents,
		TotalCents:    ComputeTotal(sess, 0),
		ShippingTitle: shippingTitle,
		CustomerEmail: email,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Metadata:      intentMetadata(sess.SessionID, acct),
	})
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	if _, err := o.sessions.UpdateSession(ctx, sess.SessionID, func(s *model.CheckoutSession) error {
		s.ProcessorAccount = acct.Label
		s.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "hosted checkout created",
		slog.String("session_id", sess.SessionID),
		slog.String("checkout_id", hc.ID),
		slog.String("account", acct.Label),
		slog.String("strategy", "round_robin"),
	)
	return &HostedResult{CheckoutID: hc.ID, URL: hc.URL, Account: acct.Label}, nil
}

func (o *Orchestrator) returnURL(path, sessionID string) string {
	if o.cfg.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(o.cfg.PublicBaseURL, "/") + path + "?sessionId=" + url.QueryEscape(sessionID)
}
