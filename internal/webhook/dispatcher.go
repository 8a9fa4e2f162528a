// Package webhook handles payment processor callbacks and drives order
// creation exactly once per checkout session.
//
// A delivery is verified against every live webhook secret until one
// matches. For a succeeded payment the session is claimed with a conditional
// update (no order yet, no live claim), the order is created, and the result
// is recorded together with the daily statistics. Attribution reporting and
// cart clearing follow concurrently and are best-effort. Every outcome other
// than a verification failure is acknowledged so the processor does not
// redeliver.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"checkout-relay/internal/model"
	"checkout-relay/internal/order"
	"checkout-relay/internal/processor"
	"checkout-relay/internal/store"
)

// Ack statuses.
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
	StatusInProgress       = "in_progress"
	StatusIgnored          = "ignored"
	StatusRecorded         = "recorded"
	StatusWarning          = "warning"
	StatusError            = "error"
)

// DefaultClaimTTL bounds how long an unfinished order claim blocks other deliveries.
const DefaultClaimTTL = 2 * time.Minute

// DefaultSecretPoolLimit caps how many webhook secrets are tried per delivery.
const DefaultSecretPoolLimit = 8

var errClaimHeld = errors.New("order claim held by another delivery")

// OrderCreator creates the commerce order for a paid session.
type OrderCreator interface {
	CreateOrder(ctx context.Context, sessionID string, sess *model.CheckoutSession, conf order.Confirmation) (order.Ref, error)
}

// PurchaseReporter reports a purchase for attribution. It never fails.
type PurchaseReporter interface {
	ReportPurchase(ctx context.Context, conf order.Confirmation, sess *model.CheckoutSession, orderID string) model.TrackingOutcome
}

// CartClearer empties the storefront cart after checkout.
type CartClearer interface {
	ClearCart(ctx context.Context, shop model.ShopSettings, cartID string) error
}

// Ack is the acknowledgment body returned to the processor.
type Ack struct {
	Received       bool   `json:"received"`
	Status         string `json:"status"`
	EventID        string `json:"eventId,omitempty"`
	EventType      string `json:"eventType,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	OrderID        string `json:"orderId,omitempty"`
	OrderNumber    string `json:"orderNumber,omitempty"`
	MatchedAccount string `json:"matchedAccount,omitempty"`
	Warning        string `json:"warning,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Config tunes the dispatcher.
type Config struct {
	SecretPoolLimit int
	ClaimTTL        time.Duration
}

// Deps groups the collaborators of a Dispatcher.
type Deps struct {
	Settings store.SettingsStore
	Sessions store.SessionStore
	Stats    store.StatsStore
	Orders   OrderCreator
	Reporter PurchaseReporter
	Carts    CartClearer
	Gateway  processor.Gateway
}

// Dispatcher processes verified processor events.
type Dispatcher struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.SecretPoolLimit <= 0 {
		cfg.SecretPoolLimit = DefaultSecretPoolLimit
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	return &Dispatcher{deps: deps, cfg: cfg, now: time.Now, logger: logger}
}

// HandleWebhook verifies and processes one delivery. It returns an error only
// when no webhook secret is configured or none verifies the signature; every
// other outcome, including business failures, is reported in the Ack.
func (d *Dispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	settings, err := store.LoadSettings(ctx, d.deps.Settings)
	if err != nil {
		return nil, err
	}

	evt, acct, err := processor.VerifyEvent(payload, signature, settings.Accounts, d.cfg.SecretPoolLimit)
	if err != nil {
		d.logger.WarnContext(ctx, "webhook rejected", slog.String("error", err.Error()))
		return nil, err
	}

	log := d.logger.With(
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("matched_account", acct.Label),
	)
	log.InfoContext(ctx, "webhook verified")

	base := Ack{Received: true, EventID: evt.ID, EventType: evt.Type, MatchedAccount: acct.Label}

	switch evt.Type {
	case processor.EventPaymentSucceeded:
		return d.handleSucceeded(ctx, log, base, evt, acct, settings), nil
	case processor.EventPaymentFailed:
		return d.handleFailed(ctx, log, base, evt), nil
	default:
		base.Status = StatusIgnored
		return &base, nil
	}
}

func (d *Dispatcher) handleSucceeded(ctx context.Context, log *slog.Logger, ack Ack, evt *processor.Event, acct model.ProcessorAccount, settings *model.Settings) *Ack {
	intent := evt.Intent
	if intent == nil || intent.Metadata[processor.MetaSessionID] == "" {
		log.WarnContext(ctx, "payment succeeded without sessionId metadata, needs manual follow-up")
		ack.Status = StatusWarning
		ack.Warning = "payment intent has no sessionId metadata"
		return &ack
	}
	if intent.Metadata[processor.MetaKind] == processor.KindUpsell {
		ack.Status = StatusIgnored
		ack.SessionID = intent.Metadata[processor.MetaSessionID]
		return &ack
	}

	conf := order.Confirmation{
		ID:          intent.ID,
		AmountCents: intent.AmountReceived,
		Currency:    intent.Currency,
		Account:     acct.Label,
		Gateway:     order.DefaultGateway,
		ConfirmedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if conf.AmountCents <= 0 {
		conf.AmountCents = intent.Amount
	}
	if evt.Created == 0 {
		conf.ConfirmedAt = d.now().UTC()
	}

	res := d.Fulfill(ctx, intent.Metadata[processor.MetaSessionID], conf, intent, settings)
	res.Received = true
	res.EventID = ack.EventID
	res.EventType = ack.EventType
	res.MatchedAccount = ack.MatchedAccount
	return res
}

func (d *Dispatcher) handleFailed(ctx context.Context, log *slog.Logger, ack Ack, evt *processor.Event) *Ack {
	ack.Status = StatusRecorded
	if evt.Intent == nil {
		return &ack
	}
	id := evt.Intent.Metadata[processor.MetaSessionID]
	if id == "" || evt.Intent.Metadata[processor.MetaKind] == processor.KindUpsell {
		return &ack
	}
	ack.SessionID = id
	_, err := d.deps.Sessions.UpdateSession(ctx, id, func(s *model.CheckoutSession) error {
		if s.PaymentStatus != model.StatusPaid {
			s.PaymentStatus = model.StatusFailed
		}
		return nil
	})
	if err != nil {
		log.WarnContext(ctx, "failed to record payment failure",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
	return &ack
}

// Fulfill creates the order for a confirmed payment at most once. The session
// is claimed first; a session that already has an order, or a live claim from
// a concurrent delivery, is left untouched. intent may be nil when the caller
// has no processor details beyond the confirmation.
func (d *Dispatcher) Fulfill(ctx context.Context, sessionID string, conf order.Confirmation, intent *processor.Intent, settings *model.Settings) *Ack {
	ack := &Ack{Received: true, SessionID: sessionID, MatchedAccount: conf.Account}
	log := d.logger.With(
		slog.String("session_id", sessionID),
		slog.String("payment_intent_id", conf.ID),
	)

	now := d.now().UTC()
	sess, err := d.deps.Sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		if s.HasOrder() {
			return model.NewAlreadyProcessedError("order")
		}
		if s.OrderClaimedAt != nil && now.Sub(*s.OrderClaimedAt) < d.cfg.ClaimTTL {
			return errClaimHeld
		}
		s.OrderClaimedAt = &now
		s.MatchedAccount = conf.Account
		if intent != nil {
			applyIntent(s, intent)
		}
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.ErrorContext(ctx, "webhook for unknown session")
		ack.Status = StatusError
		ack.Error = "session not found"
		return ack
	case errors.Is(err, model.ErrAlreadyProcessed):
		ack.Status = StatusAlreadyProcessed
		if existing, gerr := d.deps.Sessions.GetSession(ctx, sessionID); gerr == nil {
			ack.OrderID = existing.ShopifyOrderID
			ack.OrderNumber = existing.ShopifyOrderNumber
		}
		log.InfoContext(ctx, "order already created, skipping", slog.String("order_id", ack.OrderID))
		return ack
	case errors.Is(err, errClaimHeld):
		log.InfoContext(ctx, "order creation in progress by another delivery")
		ack.Status = StatusInProgress
		return ack
	case err != nil:
		log.ErrorContext(ctx, "failed to claim session for order creation", slog.String("error", err.Error()))
		ack.Status = StatusError
		ack.Error = "session update failed"
		return ack
	}

	ref, err := d.deps.Orders.CreateOrder(ctx, sessionID, sess, conf)
	if err != nil || ref.IsZero() {
		reason := "order creation failed"
		if err != nil {
			reason = err.Error()
		}
		d.release(ctx, log, sessionID, reason)
		ack.Status = StatusError
		ack.Error = "order creation failed"
		return ack
	}
	ack.OrderID = ref.OrderID
	ack.OrderNumber = ref.OrderNumber
	ack.Status = StatusProcessed

	paidAt := conf.ConfirmedAt
	if paidAt.IsZero() {
		paidAt = now
	}
	updated, err := d.deps.Sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		s.ShopifyOrderID = ref.OrderID
		s.ShopifyOrderNumber = ref.OrderNumber
		s.PaymentStatus = model.StatusPaid
		s.PaidAt = &paidAt
		s.MatchedAccount = conf.Account
		s.OrderError = ""
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "order created but not recorded on session",
			slog.String("order_id", ref.OrderID),
			slog.String("error", err.Error()),
		)
		ack.Warning = "order created but not recorded on session"
		updated = sess
	}

	day := model.DayKey(paidAt)
	if err := d.deps.Stats.RecordPayment(ctx, day, conf.Account, conf.AmountCents); err != nil {
		log.ErrorContext(ctx, "failed to record daily stats",
			slog.String("day", day),
			slog.String("error", err.Error()),
		)
	}

	d.afterOrder(ctx, log, updated, conf, ref, settings)

	log.InfoContext(ctx, "order recorded",
		slog.String("order_id", ref.OrderID),
		slog.String("order_number", ref.OrderNumber),
		slog.String("account", conf.Account),
	)
	return ack
}

// ManualRequest is the body of a manual order creation call made by the
// storefront after the client-side payment confirmation.
type ManualRequest struct {
	SessionID       string          `json:"sessionId" validate:"required"`
	PaymentIntentID string          `json:"paymentIntentId" validate:"required"`
	Customer        *model.Customer `json:"customer,omitempty"`
}

// CreateOrderManually creates the order for a session whose payment the
// processor reports as succeeded. It shares the claim with webhook delivery,
// so whichever path arrives first creates the order.
func (d *Dispatcher) CreateOrderManually(ctx context.Context, req ManualRequest) (*Ack, error) {
	sess, err := d.deps.Sessions.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.NewSessionNotFoundError(req.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	settings, err := store.LoadSettings(ctx, d.deps.Settings)
	if err != nil {
		return nil, err
	}

	label := sess.ProcessorAccount
	if label == "" {
		label = sess.MatchedAccount
	}
	acct := settings.Account(label)
	if acct == nil || acct.SecretKey == "" {
		return nil, model.NewValidationError("paymentIntentId", "session has no processor account on record")
	}

	intent, err := d.deps.Gateway.GetIntent(ctx, *acct, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Metadata[processor.MetaSessionID] != req.SessionID {
		return nil, model.NewValidationError("paymentIntentId", "payment does not belong to this session")
	}
	if intent.Status != processor.StatusSucceeded {
		return nil, model.NewPaymentError("payment has not succeeded (status " + intent.Status + ")")
	}

	if req.Customer != nil {
		_, err := d.deps.Sessions.UpdateSession(ctx, req.SessionID, func(s *model.CheckoutSession) error {
			if !s.HasOrder() {
				s.Customer = req.Customer
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("saving customer: %w", err)
		}
	}

	conf := order.Confirmation{
		ID:          intent.ID,
		AmountCents: intent.AmountReceived,
		Currency:    intent.Currency,
		Account:     acct.Label,
		Gateway:     order.DefaultGateway,
		ConfirmedAt: d.now().UTC(),
	}
	if conf.AmountCents <= 0 {
		conf.AmountCents = intent.Amount
	}
	return d.Fulfill(ctx, req.SessionID, conf, intent, settings), nil
}

// afterOrder runs attribution and cart clearing concurrently. Both are best-effort.
func (d *Dispatcher) afterOrder(ctx context.Context, log *slog.Logger, sess *model.CheckoutSession, conf order.Confirmation, ref order.Ref, settings *model.Settings) {
	var g errgroup.Group
	if d.deps.Reporter != nil {
		g.Go(func() error {
			outcome := d.deps.Reporter.ReportPurchase(ctx, conf, sess, ref.OrderID)
			log.DebugContext(ctx, "attribution finished", slog.String("status", outcome.Status))
			return nil
		})
	}
	if d.deps.Carts != nil && sess.CartToken != "" && settings.Shop.StorefrontToken != "" {
		g.Go(func() error {
			if err := d.deps.Carts.ClearCart(ctx, settings.Shop, sess.CartToken); err != nil {
				log.WarnContext(ctx, "cart clear failed",
					slog.String("cart_token", sess.CartToken),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) release(ctx context.Context, log *slog.Logger, sessionID, reason string) {
	_, err := d.deps.Sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		if s.HasOrder() {
			return nil
		}
		s.OrderClaimedAt = nil
		s.OrderError = reason
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to release order claim", slog.String("error", err.Error()))
	}
}

// applyIntent copies the processor details needed later (upsell reuse,
// contact fallback) onto the session.
func applyIntent(s *model.CheckoutSession, in *processor.Intent) {
	if in.PaymentMethodID != "" {
		s.PaymentMethodID = in.PaymentMethodID
	}
	if in.CustomerID != "" {
		s.ProcessorCustomerID = in.CustomerID
	}
	if s.PaymentIntentID == "" {
		s.PaymentIntentID = in.ID
	}
	email := in.ReceiptEmail
	if email == "" && in.Billing != nil {
		email = in.Billing.Email
	}
	if s.Customer == nil && (email != "" || in.Billing != nil) {
		s.Customer = &model.Customer{Email: email}
		if b := in.Billing; b != nil {
			s.Customer.Phone = b.Phone
			s.Customer.City = b.City
			s.Customer.Zip = b.Zip
			s.Customer.Country = b.Country
			s.Customer.FirstName, s.Customer.LastName = splitName(b.Name)
		}
	} else if s.Customer != nil && s.Customer.Email == "" {
		s.Customer.Email = email
	}
}

func splitName(full string) (string, string) {
	for i := 0; i < len(full); i++ {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
