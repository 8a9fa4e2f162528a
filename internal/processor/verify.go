package processor

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"checkout-relay/internal/model"
)

// WebhookAccounts returns the accounts whose webhook secret may verify a
// delivery, in slot order, capped at limit (limit <= 0 means no cap).
func WebhookAccounts(accounts []model.ProcessorAccount, limit int) []model.ProcessorAccount {
	var pool []model.ProcessorAccount
	for _, a := range accounts {
		if !a.CanReceiveWebhooks() {
			continue
		}
		pool = append(pool, a)
		if limit > 0 && len(pool) == limit {
			break
		}
	}
	return pool
}

// VerifyEvent checks payload against header using each live webhook secret in
// turn and returns the event with the account whose secret matched. The first
// match wins; no other secret is tried afterwards.
func VerifyEvent(payload []byte, header string, accounts []model.ProcessorAccount, limit int) (*Event, model.ProcessorAccount, error) {
	pool := WebhookAccounts(accounts, limit)
	if len(pool) == 0 {
		return nil, model.ProcessorAccount{}, model.NewNoWebhookSecretsError()
	}

	opts := webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	}
	for _, acct := range pool {
		evt, err := webhook.ConstructEventWithOptions(payload, header, acct.WebhookSecret, opts)
		if err != nil {
			continue
		}
		out, err := toEvent(evt)
		if err != nil {
			return nil, acct, model.NewValidationError("payload", err.Error())
		}
		return out, acct, nil
	}
	return nil, model.ProcessorAccount{}, model.NewInvalidSignatureError()
}

func toEvent(evt stripe.Event) (*Event, error) {
	out := &Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: evt.Created,
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return out, nil
	}
	switch out.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decoding payment intent in event %s: %w", evt.ID, err)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}
