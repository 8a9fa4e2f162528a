package processor

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"checkout-relay/internal/model"
)

func TestShippingFromCustomer(t *testing.T) {
	tests := []struct {
		name     string
		customer *model.Customer
		want     *Shipping
	}{
		{"nil customer", nil, nil},
		{"email only", &model.Customer{Email: "a@b.c"}, nil},
		{
			name:     "partial address forwarded",
			customer: &model.Customer{City: "Lyon"},
			want:     &Shipping{City: "Lyon"},
		},
		{
			name: "full",
			customer: &model.Customer{
				FirstName: "Ada", LastName: "Lovelace", Phone: "+33123",
				Address1: "1 rue", City: "Paris", Province: "IDF", Zip: "75001", Country: "FR",
			},
			want: &Shipping{
				Name: "Ada Lovelace", Phone: "+33123", Line1: "1 rue",
				City: "Paris", State: "IDF", PostalCode: "75001", Country: "FR",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShippingFromCustomer(tt.customer))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		sentinel error
	}{
		{
			name:     "card declined",
			err:      &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined.", HTTPStatusCode: http.StatusPaymentRequired},
			wantCode: "PAYMENT_ERROR",
			sentinel: model.ErrPaymentFailed,
		},
		{
			name:     "not found",
			err:      &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusNotFound},
			wantCode: "NOT_FOUND",
			sentinel: model.ErrNotFound,
		},
		{
			name:     "server error",
			err:      &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
			wantCode: "UPSTREAM_UNAVAILABLE",
			sentinel: model.ErrUpstreamUnavailable,
		},
		{
			name:     "network",
			err:      errors.New("dial tcp: i/o timeout"),
			wantCode: "UPSTREAM_UNAVAILABLE",
			sentinel: model.ErrUpstreamUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			var apiErr *model.APIError
			require.True(t, errors.As(got, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.True(t, errors.Is(got, tt.sentinel))
		})
	}
}

func TestClassify_RejectedRequest(t *testing.T) {
	got := classify(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "bad currency", HTTPStatusCode: http.StatusBadRequest})
	var apiErr *model.APIError
	require.True(t, errors.As(got, &apiErr))
	assert.Equal(t, "PROCESSOR_REJECTED", apiErr.Code)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestMock_IntentBook(t *testing.T) {
	m := &Mock{}
	ctx := context.Background()
	acct := model.ProcessorAccount{Label: "A"}

	in, err := m.CreateIntent(ctx, acct, IntentRequest{Amount: 100, Currency: "eur"})
	require.NoError(t, err)

	got, err := m.GetIntent(ctx, acct, in.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount)

	_, err = m.UpdateIntent(ctx, acct, in.ID, IntentRequest{Amount: 250, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, int64(250), m.Intent(in.ID).Amount)

	_, err = m.GetIntent(ctx, acct, "pi_missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Equal(t, 2, m.CallCount("GetIntent"))
}
