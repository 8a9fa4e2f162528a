package processor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"checkout-relay/internal/model"
)

func succeededPayload(sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_test_1",
  "object": "event",
  "type": "payment_intent.succeeded",
  "created": 1700000000,
  "data": {
    "object": {
      "id": "pi_test_1",
      "object": "payment_intent",
      "amount": 2500,
      "amount_received": 2500,
      "currency": "eur",
      "status": "succeeded",
      "metadata": {"sessionId": %q}
    }
  }
}`, sessionID))
}

func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func threeAccounts() []model.ProcessorAccount {
	return []model.ProcessorAccount{
		{Label: "A", SecretKey: "sk_a", PublishableKey: "pk_a", WebhookSecret: "whsec_a", Active: true},
		{Label: "B", SecretKey: "sk_b", PublishableKey: "pk_b", WebhookSecret: "whsec_b", Active: true},
		{Label: "C", SecretKey: "sk_c", PublishableKey: "pk_c", WebhookSecret: "whsec_c", Active: true},
	}
}

func TestVerifyEvent_MatchesSigningAccount(t *testing.T) {
	payload := succeededPayload("sess_1")
	header := sign(t, payload, "whsec_b")

	evt, acct, err := VerifyEvent(payload, header, threeAccounts(), 0)
	require.NoError(t, err)
	assert.Equal(t, "B", acct.Label)
	assert.Equal(t, EventPaymentSucceeded, evt.Type)
	require.NotNil(t, evt.Intent)
	assert.Equal(t, "pi_test_1", evt.Intent.ID)
	assert.Equal(t, int64(2500), evt.Intent.Amount)
	assert.Equal(t, "sess_1", evt.Intent.Metadata[MetaSessionID])
}

func TestVerifyEvent_NoSecretConfigured(t *testing.T) {
	accounts := threeAccounts()
	accounts[0].Active = false
	accounts[1].WebhookSecret = ""
	accounts[2].SecretKey = ""

	_, _, err := VerifyEvent(succeededPayload("s"), "t=1,v1=abc", accounts, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNoWebhookSecretsConfigured))
}

func TestVerifyEvent_InvalidSignature(t *testing.T) {
	payload := succeededPayload("sess_1")
	header := sign(t, payload, "whsec_unknown")

	_, _, err := VerifyEvent(payload, header, threeAccounts(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature))
}

func TestVerifyEvent_TamperedBody(t *testing.T) {
	payload := succeededPayload("sess_1")
	header := sign(t, payload, "whsec_a")

	_, _, err := VerifyEvent(succeededPayload("sess_2"), header, threeAccounts(), 0)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature))
}

func TestVerifyEvent_InactiveAccountSecretIgnored(t *testing.T) {
	accounts := threeAccounts()
	accounts[1].Active = false
	payload := succeededPayload("sess_1")
	header := sign(t, payload, "whsec_b")

	_, _, err := VerifyEvent(payload, header, accounts, 0)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature))
}

func TestVerifyEvent_PoolLimit(t *testing.T) {
	payload := succeededPayload("sess_1")
	header := sign(t, payload, "whsec_c")

	_, _, err := VerifyEvent(payload, header, threeAccounts(), 2)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature), "third secret is beyond the pool limit")

	_, acct, err := VerifyEvent(payload, header, threeAccounts(), 3)
	require.NoError(t, err)
	assert.Equal(t, "C", acct.Label)
}

func TestWebhookAccounts(t *testing.T) {
	accounts := threeAccounts()
	accounts[0].WebhookSecret = ""

	pool := WebhookAccounts(accounts, 0)
	require.Len(t, pool, 2)
	assert.Equal(t, "B", pool[0].Label)
	assert.Equal(t, "C", pool[1].Label)
}
