// Package processor is the boundary to the payment processor.
//
// Core logic talks to the Gateway interface and the typed values below;
// processor wire formats stay inside the Stripe implementation.
package processor

import (
	"context"
	"fmt"

	"checkout-relay/internal/model"
)

// Event types the relay acts on.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Intent statuses referenced by the orchestrator.
const (
	StatusCanceled  = "canceled"
	StatusSucceeded = "succeeded"
)

// Metadata keys carried on every payment intent. Metadata is the only
// channel linking an asynchronous webhook back to its checkout session.
const (
	MetaSessionID    = "sessionId"
	MetaMerchantSite = "merchantSite"
	MetaAccount      = "account"
	MetaKind         = "kind"
)

// KindUpsell is the MetaKind value of post-purchase off-session charges.
const KindUpsell = "upsell"

// Intent is the processor-agnostic view of a payment intent.
type Intent struct {
	ID              string
	ClientSecret    string
	Amount          int64
	AmountReceived  int64
	Currency        string
	Status          string
	Metadata        map[string]string
	PaymentMethodID string
	CustomerID      string
	ReceiptEmail    string
	Billing         *BillingDetails
	Created         int64
}

// BillingDetails are contact fields the processor collected with the payment method.
type BillingDetails struct {
	Name    string
	Email   string
	Phone   string
	City    string
	Zip     string
	Country string
}

// Shipping is the optional shipping block attached to an intent.
type Shipping struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShippingFromCustomer builds a Shipping block, or nil when the customer carries
// no shipping information at all. Incomplete addresses are still forwarded.
func ShippingFromCustomer(c *model.Customer) *Shipping {
	if !c.HasShippingInfo() {
		return nil
	}
	return &Shipping{
		Name:       c.FullName(),
		Phone:      c.Phone,
		Line1:      c.Address1,
		Line2:      c.Address2,
		City:       c.City,
		State:      c.Province,
		PostalCode: c.Zip,
		Country:    c.Country,
	}
}

// IntentRequest describes a payment intent to create or update.
type IntentRequest struct {
	Amount            int64
	Currency          string
	Metadata          map[string]string
	Shipping          *Shipping
	ReceiptEmail      string
	CustomerID        string
	SaveForOffSession bool
}

// CustomerRequest creates a processor-side customer for off-session reuse.
type CustomerRequest struct {
	Email string
	Name  string
	Phone string
}

// OffSessionCharge charges a stored payment method without the customer present.
type OffSessionCharge struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
	// IdempotencyKey makes a retried charge return the first attempt's
	// result instead of charging again.
	IdempotencyKey string
}

// HostedCheckoutRequest creates a processor-hosted payment page.
type HostedCheckoutRequest struct {
	Currency      string
	Items         []model.LineItem
	ShippingCents int64
	ShippingTitle string
	// TotalCents is the amount the shopper owes. When set and the lines do
	// not add up to it, the page shows a single line for the total.
	TotalCents    int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// HostedLine is one priced line on a hosted payment page.
type HostedLine struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

// HostedLines prices the request for a hosted page. A line whose total does
// not divide evenly by its quantity is sent as one unit at the line total so
// no cents are lost to rounding.
func HostedLines(req HostedCheckoutRequest) []HostedLine {
	var lines []HostedLine
	var sum int64
	for _, it := range req.Items {
		total := it.TotalCents()
		if it.Quantity <= 0 || total <= 0 {
			continue
		}
		name := it.Title
		if it.VariantTitle != "" {
			name += " - " + it.VariantTitle
		}
		line := HostedLine{Name: name, Image: it.Image, UnitAmount: total / it.Quantity, Quantity: it.Quantity}
		if total%it.Quantity != 0 {
			line.Name = fmt.Sprintf("%s x %d", name, it.Quantity)
			line.UnitAmount = total
			line.Quantity = 1
		}
		lines = append(lines, line)
		sum += total
	}
	if req.ShippingCents > 0 {
		lines = append(lines, HostedLine{Name: req.ShippingTitle, UnitAmount: req.ShippingCents, Quantity: 1})
		sum += req.ShippingCents
	}
	if req.TotalCents > 0 && sum != req.TotalCents {
		return []HostedLine{{Name: "Order total", UnitAmount: req.TotalCents, Quantity: 1}}
	}
	return lines
}

// HostedCheckout is the created hosted page.
type HostedCheckout struct {
	ID  string
	URL string
}

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Created int64
	Intent  *Intent // set for payment_intent.* events
}

// Gateway performs processor calls on behalf of a specific account.
type Gateway interface {
	CreateIntent(ctx context.Context, acct model.ProcessorAccount, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, acct model.ProcessorAccount, id string) (*Intent, error)
	UpdateIntent(ctx context.Context, acct model.ProcessorAccount, id string, req IntentRequest) (*Intent, error)
	CreateCustomer(ctx context.Context, acct model.ProcessorAccount, req CustomerRequest) (string, error)
	ChargeOffSession(ctx context.Context, acct model.ProcessorAccount, req OffSessionCharge) (*Intent, error)
	CreateHostedCheckout(ctx context.Context, acct model.ProcessorAccount, req HostedCheckoutRequest) (*HostedCheckout, error)
}
