// Package payment creates and reuses payment intents for checkout sessions.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"checkout-relay/internal/model"
	"checkout-relay/internal/processor"
	"checkout-relay/internal/rotation"
	"checkout-relay/internal/store"
)

// AccountSelector picks the processor account for a new payment intent.
type AccountSelector interface {
	Select(ctx context.Context) (model.ProcessorAccount, error)
}

// AddOnOrderer places the commerce order for a post-purchase upsell.
type AddOnOrderer interface {
	CreateAddOnOrder(ctx context.Context, sess *model.CheckoutSession, items []model.LineItem, confirmationID string) (orderID, orderNumber string, err error)
}

// Config holds the orchestrator's static settings.
type Config struct {
	DefaultCurrency string
	PublicBaseURL   string // base for hosted checkout return URLs
}

// Orchestrator obtains payment intents and hosted checkouts for sessions.
type Orchestrator struct {
	sessions   store.SessionStore
	settings   store.SettingsStore
	stats      store.StatsStore
	selector   AccountSelector
	roundRobin *rotation.RoundRobin
	gateway    processor.Gateway
	addOns     AddOnOrderer
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Sessions   store.SessionStore
	Settings   store.SettingsStore
	Stats      store.StatsStore
	Selector   AccountSelector
	RoundRobin *rotation.RoundRobin
	Gateway    processor.Gateway
	AddOns     AddOnOrderer // optional; upsells are charged without an order when nil
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "eur"
	}
	return &Orchestrator{
		sessions:   deps.Sessions,
		settings:   deps.Settings,
		stats:      deps.Stats,
		selector:   deps.Selector,
		roundRobin: deps.RoundRobin,
		gateway:    deps.Gateway,
		addOns:     deps.AddOns,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// EnsureRequest is the input of EnsurePaymentIntent.
type EnsureRequest struct {
	SessionID     string
	Customer      *model.Customer
	ShippingCents int64 // client override, used only when positive
}

// EnsureResult is what the checkout page needs to confirm the payment.
type EnsureResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	PublishableKey  string `json:"publishableKey,omitempty"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	Reused          bool   `json:"reused"`
	Account         string `json:"-"`
}

// ComputeTotal returns the amount to charge for a session: the stored total
// when positive, otherwise subtotal plus shipping (the override wins when positive).
func ComputeTotal(sess *model.CheckoutSession, shippingOverride int64) int64 {
	if sess.TotalCents > 0 {
		return sess.TotalCents
	}
	shipping := sess.ShippingCents
	if shippingOverride > 0 {
		shipping = shippingOverride
	}
	return sess.SubtotalCents + shipping
}

// EnsurePaymentIntent returns a payment intent for the session's total, reusing
// the session's existing intent when amount and currency still match, updating
// it in place when they differ, and creating a new one otherwise. A stale
// intent reference never fails the checkout; it falls through to creation.
func (o *Orchestrator) EnsurePaymentIntent(ctx context.Context, req EnsureRequest) (*EnsureResult, error) {
	sess, err := o.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	total := ComputeTotal(sess, req.ShippingCents)
	if total <= 0 {
		return nil, model.NewInvalidAmountError(total)
	}

	settings, err := store.LoadSettings(ctx, o.settings)
	if err != nil {
		return nil, err
	}
	currency := model.NormalizeCurrency(sess.Currency, o.defaultCurrency(settings))

	customer := req.Customer
	if customer == nil {
		customer = sess.Customer
	}
	intentReq := processor.IntentRequest{
		Amount:       total,
		Currency:     currency,
		Shipping:     processor.ShippingFromCustomer(customer),
		ReceiptEmail: emailOf(customer),
	}

	if sess.PaymentIntentID != "" {
		if res, ok := o.reuseIntent(ctx, sess, settings, intentReq, req); ok {
			return res, nil
		}
	}

	acct, err := o.selectAccount(ctx, settings)
	if err != nil {
		return nil, err
	}

	intentReq.Metadata = intentMetadata(sess.SessionID, acct)
	if settings.UpsellEnabled && emailOf(customer) != "" {
		custID, err := o.gateway.CreateCustomer(ctx, acct, processor.CustomerRequest{
			Email: customer.Email,
			Name:  customer.FullName(),
			Phone: customer.Phone,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "processor customer creation failed, continuing without off-session reuse",
				slog.String("session_id", sess.SessionID),
				slog.String("error", err.Error()),
			)
		} else {
			intentReq.CustomerID = custID
			intentReq.SaveForOffSession = true
		}
	}

	intent, err := o.gateway.CreateIntent(ctx, acct, intentReq)
	if err != nil {
		return nil, err
	}

	if err := o.recordIntent(ctx, sess.SessionID, intent, acct.Label, total, currency, req); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "payment intent created",
		slog.String("session_id", sess.SessionID),
		slog.String("payment_intent_id", intent.ID),
		slog.String("account", acct.Label),
		slog.Int64("amount_cents", total),
		slog.String("currency", currency),
	)

	return &EnsureResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PublishableKey:  acct.PublishableKey,
		AmountCents:     total,
		Currency:        currency,
		Account:         acct.Label,
	}, nil
}

// reuseIntent tries to return or update the session's existing intent.
// It reports false whenever the caller should create a fresh intent instead.
func (o *Orchestrator) reuseIntent(ctx context.Context, sess *model.CheckoutSession, settings *model.Settings, intentReq processor.IntentRequest, req EnsureRequest) (*EnsureResult, bool) {
	owner, ok := intentOwner(sess, settings)
	if !ok {
		o.logger.InfoContext(ctx, "account of existing payment intent no longer configured, creating a new one",
			slog.String("session_id", sess.SessionID),
			slog.String("account", sess.ProcessorAccount),
		)
		return nil, false
	}
	log := o.logger.With(
		slog.String("session_id", sess.SessionID),
		slog.String("payment_intent_id", sess.PaymentIntentID),
		slog.String("account", owner.Label),
	)

	existing, err := o.gateway.GetIntent(ctx, owner, sess.PaymentIntentID)
	if err != nil {
		log.WarnContext(ctx, "existing payment intent unavailable, creating a new one", slog.String("error", err.Error()))
		return nil, false
	}
	if existing.Status == processor.StatusCanceled {
		log.InfoContext(ctx, "existing payment intent canceled, creating a new one")
		return nil, false
	}

	res := &EnsureResult{
		PaymentIntentID: existing.ID,
		PublishableKey:  owner.PublishableKey,
		AmountCents:     intentReq.Amount,
		Currency:        intentReq.Currency,
		Reused:          true,
		Account:         owner.Label,
	}

	if existing.Amount == intentReq.Amount && strings.EqualFold(existing.Currency, intentReq.Currency) {
		res.ClientSecret = existing.ClientSecret
		if req.Customer != nil || req.ShippingCents > 0 {
			if err := o.recordIntent(ctx, sess.SessionID, existing, owner.Label, intentReq.Amount, intentReq.Currency, req); err != nil {
				log.WarnContext(ctx, "failed to persist customer on reused intent", slog.String("error", err.Error()))
			}
		}
		log.DebugContext(ctx, "payment intent reused")
		return res, true
	}

	intentReq.Metadata = intentMetadata(sess.SessionID, owner)
	updated, err := o.gateway.UpdateIntent(ctx, owner, existing.ID, intentReq)
	if err != nil {
		log.WarnContext(ctx, "payment intent update failed, creating a new one", slog.String("error", err.Error()))
		return nil, false
	}
	if err := o.recordIntent(ctx, sess.SessionID, updated, owner.Label, intentReq.Amount, intentReq.Currency, req); err != nil {
		log.WarnContext(ctx, "failed to persist updated payment intent", slog.String("error", err.Error()))
		return nil, false
	}
	res.ClientSecret = updated.ClientSecret
	log.InfoContext(ctx, "payment intent updated",
		slog.Int64("previous_amount_cents", existing.Amount),
		slog.Int64("amount_cents", intentReq.Amount),
	)
	return res, true
}

// intentOwner resolves the account that created the session's intent. An
// intent can only be retrieved with the key of the account that created it.
func intentOwner(sess *model.CheckoutSession, settings *model.Settings) (model.ProcessorAccount, bool) {
	if sess.ProcessorAccount == "" {
		return model.ProcessorAccount{}, false
	}
	a := settings.Account(sess.ProcessorAccount)
	if a == nil || a.SecretKey == "" {
		return model.ProcessorAccount{}, false
	}
	return *a, true
}

// selectAccount runs the rotator and falls back to the first account with a
// secret key when rotation fails for a reason other than an empty pool.
func (o *Orchestrator) selectAccount(ctx context.Context, settings *model.Settings) (model.ProcessorAccount, error) {
	acct, err := o.selector.Select(ctx)
	if err == nil {
		return acct, nil
	}
	if errors.Is(err, model.ErrNoActiveAccount) {
		return model.ProcessorAccount{}, err
	}

	for _, a := range settings.Accounts {
		if a.SecretKey != "" {
			o.logger.WarnContext(ctx, "account rotation unavailable, using first account with a secret key",
				slog.String("account", a.Label),
				slog.String("error", err.Error()),
			)
			return a, nil
		}
	}
	return model.ProcessorAccount{}, model.NewNoActiveAccountError()
}

func (o *Orchestrator) recordIntent(ctx context.Context, sessionID string, intent *processor.Intent, account string, total int64, currency string, req EnsureRequest) error {
	now := o.now().UTC()
	_, err := o.sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		s.PaymentIntentID = intent.ID
		if intent.ClientSecret != "" {
			s.PaymentIntentClientSecret = intent.ClientSecret
		}
		s.ProcessorAccount = account
		if intent.CustomerID != "" {
			s.ProcessorCustomerID = intent.CustomerID
		}
		s.TotalCents = total
		s.Currency = currency
		if req.ShippingCents > 0 {
			s.ShippingCents = req.ShippingCents
		}
		if req.Customer != nil {
			c := *req.Customer
			s.Customer = &c
		}
		s.UpdatedAt = now
		return nil
	})
	return err
}

func (o *Orchestrator) loadSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	if id == "" {
		return nil, model.NewValidationError("sessionId", "required")
	}
	sess, err := o.sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Orchestrator) defaultCurrency(settings *model.Settings) string {
	if settings.DefaultCurrency != "" {
		return settings.DefaultCurrency
	}
	return o.cfg.DefaultCurrency
}

func intentMetadata(sessionID string, acct model.ProcessorAccount) map[string]string {
	md := map[string]string{
		processor.MetaSessionID: sessionID,
		processor.MetaAccount:   acct.Label,
	}
	if acct.MerchantSite != "" {
		md[processor.MetaMerchantSite] = acct.MerchantSite
	}
	return md
}

func emailOf(c *model.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Email)
}
