package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-relay/internal/model"
	"checkout-relay/internal/processor"
)

func TestCreateHostedCheckout_RoundRobin(t *testing.T) {
	inactive := account("C")
	inactive.Active = false
	f := newFixture(t, account("A"), account("B"), inactive)
	ctx := context.Background()

	var used []string
	var lastReq processor.HostedCheckoutRequest
	f.gateway.CreateHostedCheckoutFunc = func(_ context.Context, acct model.ProcessorAccount, req processor.HostedCheckoutRequest) (*processor.HostedCheckout, error) {
		used = append(used, acct.Label)
		lastReq = req
		return &processor.HostedCheckout{ID: "cs_" + acct.Label, URL: "https://pay.example/" + acct.Label}, nil
	}

	f.putSession(t, &model.CheckoutSession{
		SessionID:     "s",
		Currency:      "usd",
		SubtotalCents: 1000,
		ShippingCents: 300,
		Items:         []model.LineItem{{Title: "Mug", Quantity: 2, LinePriceCents: 1000}},
	})
	for i := 0; i < 4; i++ {
		_, err := f.orch.CreateHostedCheckout(ctx, HostedRequest{SessionID: "s"})
		require.NoError(t, err)
	}

	// Round-robin covers every account with a secret key, active or not.
	assert.Equal(t, []string{"A", "B", "C", "A"}, used)
	assert.Equal(t, "usd", lastReq.Currency)
	assert.Equal(t, int64(300), lastReq.ShippingCents)
	assert.Equal(t, int64(1300), lastReq.TotalCents)
	assert.Equal(t, "Standard", lastReq.ShippingTitle)
	assert.Equal(t, "https://shop.example/thank-you?sessionId=s", lastReq.SuccessURL)
	assert.Equal(t, "s", lastReq.Metadata[processor.MetaSessionID])
	assert.Equal(t, 0, f.gateway.CallCount("CreateIntent"))

	sess, err := f.store.GetSession(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "A", sess.ProcessorAccount)
}

func TestCreateHostedCheckout_NoAccounts(t *testing.T) {
	f := newFixture(t)
	f.putSession(t, &model.CheckoutSession{SessionID: "s", TotalCents: 100})

	_, err := f.orch.CreateHostedCheckout(context.Background(), HostedRequest{SessionID: "s"})
	assert.True(t, errors.Is(err, model.ErrNoActiveAccount))
}
