package processor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"checkout-relay/internal/model"
)

// Stripe implements Gateway with one stripe-go client per account secret key.
type Stripe struct {
	backends *stripe.Backends
	clients  sync.Map // secret key -> *client.API
}

// NewStripe creates a Stripe gateway whose HTTP calls are bounded by timeout.
func NewStripe(timeout time.Duration) *Stripe {
	return &Stripe{
		backends: stripe.NewBackends(&http.Client{Timeout: timeout}),
	}
}

func newStripeWithBackends(b *stripe.Backends) *Stripe {
	return &Stripe{backends: b}
}

func (s *Stripe) api(acct model.ProcessorAccount) *client.API {
	if v, ok := s.clients.Load(acct.SecretKey); ok {
		return v.(*client.API)
	}
	sc := client.New(acct.SecretKey, s.backends)
	actual, _ := s.clients.LoadOrStore(acct.SecretKey, sc)
	return actual.(*client.API)
}

func (s *Stripe) CreateIntent(ctx context.Context, acct model.ProcessorAccount, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	applyIntentRequest(params, req)
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.SaveForOffSession {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	pi, err := s.api(acct).PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, acct model.ProcessorAccount, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api(acct).PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) UpdateIntent(ctx context.Context, acct model.ProcessorAccount, id string, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
	}
	params.Context = ctx
	applyIntentRequest(params, req)

	pi, err := s.api(acct).PaymentIntents.Update(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) CreateCustomer(ctx context.Context, acct model.ProcessorAccount, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	if req.Phone != "" {
		params.Phone = stripe.String(req.Phone)
	}

	c, err := s.api(acct).Customers.New(params)
	if err != nil {
		return "", classify(err)
	}
	return c.ID, nil
}

func (s *Stripe) ChargeOffSession(ctx context.Context, acct model.ProcessorAccount, req OffSessionCharge) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api(acct).PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) CreateHostedCheckout(ctx context.Context, acct model.ProcessorAccount, req HostedCheckoutRequest) (*HostedCheckout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	for _, line := range HostedLines(req) {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.Image != "" {
			product.Images = []*string{stripe.String(line.Image)}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if id := req.Metadata[MetaSessionID]; id != "" {
		params.ClientReferenceID = stripe.String(id)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		}
	}

	cs, err := s.api(acct).CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &HostedCheckout{ID: cs.ID, URL: cs.URL}, nil
}

func applyIntentRequest(params *stripe.PaymentIntentParams, req IntentRequest) {
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if sh := req.Shipping; sh != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name: stripe.String(sh.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(sh.Line1),
				Line2:      stripe.String(sh.Line2),
				City:       stripe.String(sh.City),
				State:      stripe.String(sh.State),
				PostalCode: stripe.String(sh.PostalCode),
				Country:    stripe.String(sh.Country),
			},
		}
		if sh.Phone != "" {
			params.Shipping.Phone = stripe.String(sh.Phone)
		}
	}
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		Metadata:       pi.Metadata,
		ReceiptEmail:   pi.ReceiptEmail,
		Created:        pi.Created,
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		in.CustomerID = pi.Customer.ID
	}
	if ch := pi.LatestCharge; ch != nil && ch.BillingDetails != nil {
		b := &BillingDetails{
			Name:  ch.BillingDetails.Name,
			Email: ch.BillingDetails.Email,
			Phone: ch.BillingDetails.Phone,
		}
		if addr := ch.BillingDetails.Address; addr != nil {
			b.City = addr.City
			b.Zip = addr.PostalCode
			b.Country = addr.Country
		}
		in.Billing = b
	}
	return in
}

// classify maps stripe-go errors onto the relay's error taxonomy.
// Network failures and 5xx become UpstreamUnavailable; card declines become payment errors.
func classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.Type == stripe.ErrorTypeCard:
			msg := se.Msg
			if msg == "" {
				msg = "card declined"
			}
			return model.NewPaymentError(msg)
		case se.HTTPStatusCode == http.StatusNotFound:
			return model.NewNotFoundError("payment intent")
		case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500:
			return &model.APIError{
				Code:       "PROCESSOR_REJECTED",
				Message:    se.Msg,
				StatusCode: http.StatusBadGateway,
				Err:        err,
			}
		}
	}
	return model.NewUpstreamError("Stripe", err)
}

var _ Gateway = (*Stripe)(nil)
