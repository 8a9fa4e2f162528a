package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"checkout-relay/internal/model"
	"checkout-relay/internal/processor"
	"checkout-relay/internal/store"
)

// UpsellRequest is a post-purchase add-on charged against the stored payment method.
type UpsellRequest struct {
	SessionID string
	Items     []model.LineItem
}

// UpsellResult describes a completed upsell.
type UpsellResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	OrderID         string `json:"orderId,omitempty"`
	OrderNumber     string `json:"orderNumber,omitempty"`
}

// ChargeUpsell charges the upsell items off-session with the account that
// processed the original payment. The original payment must be confirmed and
// the upsell not yet charged; the session is claimed while the charge runs.
//
// Every charge attempt carries an idempotency key derived from the session
// and its attempt counter. A card decline ends the attempt and releases the
// claim. Any other failure leaves the claim in place with the error recorded,
// because the processor may have charged the card; a later call retries with
// the same key and so receives the original outcome instead of a new charge.
func (o *Orchestrator) ChargeUpsell(ctx context.Context, req UpsellRequest) (*UpsellResult, error) {
	var amount int64
	for _, it := range req.Items {
		amount += it.TotalCents()
	}
	if len(req.Items) == 0 || amount <= 0 {
		return nil, model.NewInvalidAmountError(amount)
	}

	settings, err := store.LoadSettings(ctx, o.settings)
	if err != nil {
		return nil, err
	}
	if !settings.UpsellEnabled {
		return nil, model.NewConflictError("upsell is disabled")
	}

	if _, err := o.loadSession(ctx, req.SessionID); err != nil {
		return nil, err
	}

	now := o.now().UTC()
	sess, err := o.sessions.UpdateSession(ctx, req.SessionID, func(s *model.CheckoutSession) error {
		switch {
		case s.PaymentStatus != model.StatusPaid:
			return model.NewConflictError("original payment is not confirmed yet")
		case s.UpsellStatus == model.StatusPaid:
			return model.NewConflictError("upsell already charged")
		case s.UpsellStatus == model.StatusProcessing && s.UpsellError == "":
			return model.NewConflictError("upsell charge already in progress")
		case s.PaymentMethodID == "" || s.ProcessorCustomerID == "":
			return model.NewConflictError("no stored payment method for this session")
		}
		s.UpsellStatus = model.StatusProcessing
		s.UpsellError = ""
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	label := sess.MatchedAccount
	if label == "" {
		label = sess.ProcessorAccount
	}
	acct := settings.Account(label)
	if acct == nil || acct.SecretKey == "" {
		o.releaseUpsell(ctx, sess.SessionID, false)
		return nil, model.NewNoActiveAccountError()
	}

	currency := model.NormalizeCurrency(sess.Currency, o.defaultCurrency(settings))
	intent, err := o.gateway.ChargeOffSession(ctx, *acct, processor.OffSessionCharge{
		Amount:          amount,
		Currency:        currency,
		CustomerID:      sess.ProcessorCustomerID,
		PaymentMethodID: sess.PaymentMethodID,
		Metadata: map[string]string{
			processor.MetaSessionID: sess.SessionID,
			processor.MetaAccount:   acct.Label,
			processor.MetaKind:      processor.KindUpsell,
		},
		IdempotencyKey: upsellKey(sess),
	})
	if err != nil {
		o.logger.WarnContext(ctx, "upsell charge failed",
			slog.String("session_id", sess.SessionID),
			slog.String("account", acct.Label),
			slog.Bool("declined", errors.Is(err, model.ErrPaymentFailed)),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, model.ErrPaymentFailed) {
			o.releaseUpsell(ctx, sess.SessionID, true)
		} else {
			o.holdUpsell(ctx, sess.SessionID, err)
		}
		return nil, err
	}

	res := &UpsellResult{PaymentIntentID: intent.ID, AmountCents: amount, Currency: currency}
	day := model.DayKey(now)
	if err := o.stats.RecordPayment(ctx, day, acct.Label, amount); err != nil {
		o.logger.ErrorContext(ctx, "failed to record upsell in daily stats",
			slog.String("session_id", sess.SessionID),
			slog.String("day", day),
			slog.String("error", err.Error()),
		)
	}

	if o.addOns != nil {
		id, number, err := o.addOns.CreateAddOnOrder(ctx, sess, req.Items, intent.ID)
		if err != nil {
			o.logger.ErrorContext(ctx, "upsell order creation failed",
				slog.String("session_id", sess.SessionID),
				slog.String("payment_intent_id", intent.ID),
				slog.String("error", err.Error()),
			)
		} else {
			res.OrderID, res.OrderNumber = id, number
		}
	}

	record := &model.UpsellRecord{
		PaymentIntentID: intent.ID,
		AmountCents:     amount,
		Items:           append([]model.LineItem(nil), req.Items...),
		OrderID:         res.OrderID,
		OrderNumber:     res.OrderNumber,
		ChargedAt:       now,
	}
	if _, err := o.sessions.UpdateSession(ctx, sess.SessionID, func(s *model.CheckoutSession) error {
		s.UpsellStatus = model.StatusPaid
		s.UpsellError = ""
		s.Upsell = record
		s.UpdatedAt = o.now().UTC()
		return nil
	}); err != nil {
		// The charge already succeeded.
		o.logger.ErrorContext(ctx, "failed to persist upsell record",
			slog.String("session_id", sess.SessionID),
			slog.String("payment_intent_id", intent.ID),
			slog.String("error", err.Error()),
		)
		return res, err
	}

	o.logger.InfoContext(ctx, "upsell charged",
		slog.String("session_id", sess.SessionID),
		slog.String("payment_intent_id", intent.ID),
		slog.String("account", acct.Label),
		slog.Int64("amount_cents", amount),
	)
	return res, nil
}

// upsellKey identifies one charge attempt for the session.
func upsellKey(s *model.CheckoutSession) string {
	return fmt.Sprintf("upsell_%s_%d", s.SessionID, s.UpsellAttempts)
}

// releaseUpsell drops the claim. After a decline the attempt counter moves on
// so the next charge is a new request rather than a replay of the decline.
func (o *Orchestrator) releaseUpsell(ctx context.Context, sessionID string, attempted bool) {
	_, err := o.sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		if s.UpsellStatus == model.StatusProcessing {
			s.UpsellStatus = ""
			s.UpsellError = ""
			if attempted {
				s.UpsellAttempts++
			}
		}
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to release upsell claim",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// holdUpsell keeps the claim after a charge with an unknown outcome and
// records the error for reconciliation.
func (o *Orchestrator) holdUpsell(ctx context.Context, sessionID string, cause error) {
	_, err := o.sessions.UpdateSession(ctx, sessionID, func(s *model.CheckoutSession) error {
		if s.UpsellStatus == model.StatusProcessing {
			s.UpsellError = cause.Error()
		}
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record upsell charge error",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
