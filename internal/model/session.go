package model

import (
	"strings"
	"time"
)

// Payment and upsell status values.
const (
	StatusPaid       = "paid"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// CheckoutSession is the frozen cart snapshot plus processor and order references.
// Cents are the only unit of record for every money field.
type CheckoutSession struct {
	SessionID     string     `json:"sessionId" firestore:"sessionId"`
	Currency      string     `json:"currency" firestore:"currency"`
	SubtotalCents int64      `json:"subtotalCents" firestore:"subtotalCents"`
	ShippingCents int64      `json:"shippingCents" firestore:"shippingCents"`
	TotalCents    int64      `json:"totalCents" firestore:"totalCents"`
	Items         []LineItem `json:"items" firestore:"items"`

	// Storefront cart linkage and attribution context captured at snapshot time.
	CartToken  string            `json:"cartToken,omitempty" firestore:"cartToken"`
	Attributes map[string]string `json:"attributes,omitempty" firestore:"attributes"`
	SourceURL  string            `json:"sourceUrl,omitempty" firestore:"sourceUrl"`
	ClientIP   string            `json:"clientIp,omitempty" firestore:"clientIp"`
	UserAgent  string            `json:"userAgent,omitempty" firestore:"userAgent"`

	PaymentIntentID           string    `json:"paymentIntentId,omitempty" firestore:"paymentIntentId"`
	PaymentIntentClientSecret string    `json:"paymentIntentClientSecret,omitempty" firestore:"paymentIntentClientSecret"`
	ProcessorAccount          string    `json:"processorAccount,omitempty" firestore:"processorAccount"`
	ProcessorCustomerID       string    `json:"processorCustomerId,omitempty" firestore:"processorCustomerId"`
	PaymentMethodID           string    `json:"paymentMethodId,omitempty" firestore:"paymentMethodId"`
	Customer                  *Customer `json:"customer,omitempty" firestore:"customer"`

	ShopifyOrderID     string     `json:"shopifyOrderId,omitempty" firestore:"shopifyOrderId"`
	ShopifyOrderNumber string     `json:"shopifyOrderNumber,omitempty" firestore:"shopifyOrderNumber"`
	OrderClaimedAt     *time.Time `json:"orderClaimedAt,omitempty" firestore:"orderClaimedAt"`
	OrderError         string     `json:"orderError,omitempty" firestore:"orderError"`
	PaymentStatus      string     `json:"paymentStatus,omitempty" firestore:"paymentStatus"`
	PaidAt             *time.Time `json:"paidAt,omitempty" firestore:"paidAt"`
	MatchedAccount     string     `json:"matchedAccount,omitempty" firestore:"matchedAccount"`

	Tracking *TrackingOutcome `json:"tracking,omitempty" firestore:"tracking"`

	UpsellStatus   string        `json:"upsellStatus,omitempty" firestore:"upsellStatus"`
	Upsell         *UpsellRecord `json:"upsell,omitempty" firestore:"upsell"`
	UpsellError    string        `json:"upsellError,omitempty" firestore:"upsellError"`
	UpsellAttempts int           `json:"upsellAttempts,omitempty" firestore:"upsellAttempts"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// LineItem is one cart line as captured in the snapshot.
// LinePriceCents already reflects discounts applied to the line.
type LineItem struct {
	ID             string `json:"id" firestore:"id"`
	VariantID      string `json:"variantId" firestore:"variantId"`
	Title          string `json:"title" firestore:"title"`
	VariantTitle   string `json:"variantTitle,omitempty" firestore:"variantTitle"`
	Quantity       int64  `json:"quantity" firestore:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents" firestore:"unitPriceCents"`
	LinePriceCents int64  `json:"linePriceCents" firestore:"linePriceCents"`
	Image          string `json:"image,omitempty" firestore:"image"`
}

// TotalCents is the amount the shopper pays for the line: the captured line
// price, which already carries line discounts, or unit price times quantity.
func (it LineItem) TotalCents() int64 {
	if it.LinePriceCents > 0 {
		return it.LinePriceCents
	}
	if it.Quantity <= 0 {
		return 0
	}
	return it.UnitPriceCents * it.Quantity
}

// UnitCents is the per-unit price reported downstream: the line total divided
// by quantity, rounded half up, or the unit price when no line total exists.
func (it LineItem) UnitCents() int64 {
	if it.LinePriceCents > 0 && it.Quantity > 0 {
		return (it.LinePriceCents + it.Quantity/2) / it.Quantity
	}
	return it.UnitPriceCents
}

// Customer is the contact and address captured at payment time.
type Customer struct {
	Email     string `json:"email,omitempty" firestore:"email"`
	FirstName string `json:"firstName,omitempty" firestore:"firstName"`
	LastName  string `json:"lastName,omitempty" firestore:"lastName"`
	Phone     string `json:"phone,omitempty" firestore:"phone"`
	Address1  string `json:"address1,omitempty" firestore:"address1"`
	Address2  string `json:"address2,omitempty" firestore:"address2"`
	City      string `json:"city,omitempty" firestore:"city"`
	Province  string `json:"province,omitempty" firestore:"province"`
	Zip       string `json:"zip,omitempty" firestore:"zip"`
	Country   string `json:"country,omitempty" firestore:"country"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasShippingInfo reports whether any of name/address/city/zip/country is present.
func (c *Customer) HasShippingInfo() bool {
	if c == nil {
		return false
	}
	return c.FullName() != "" || c.Address1 != "" || c.City != "" || c.Zip != "" || c.Country != ""
}

// TrackingOutcome records what happened when the purchase was reported for attribution.
type TrackingOutcome struct {
	Status    string    `json:"status" firestore:"status"` // "sent", "failed", "skipped"
	EventID   string    `json:"eventId,omitempty" firestore:"eventId"`
	TraceID   string    `json:"traceId,omitempty" firestore:"traceId"`
	Error     string    `json:"error,omitempty" firestore:"error"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// UpsellRecord is the post-purchase off-session charge.
type UpsellRecord struct {
	PaymentIntentID string     `json:"paymentIntentId" firestore:"paymentIntentId"`
	AmountCents     int64      `json:"amountCents" firestore:"amountCents"`
	Items           []LineItem `json:"items" firestore:"items"`
	OrderID         string     `json:"orderId,omitempty" firestore:"orderId"`
	OrderNumber     string     `json:"orderNumber,omitempty" firestore:"orderNumber"`
	ChargedAt       time.Time  `json:"chargedAt" firestore:"chargedAt"`
}

// HasOrder reports whether an order reference has been recorded.
func (s *CheckoutSession) HasOrder() bool {
	return s.ShopifyOrderID != ""
}

// Attribute returns a cart attribute by key, tolerating the "_" prefix
// storefront themes use for hidden attributes.
func (s *CheckoutSession) Attribute(key string) string {
	if s.Attributes == nil {
		return ""
	}
	if v := s.Attributes[key]; v != "" {
		return v
	}
	return s.Attributes["_"+key]
}

// Clone returns a deep copy safe to mutate.
func (s *CheckoutSession) Clone() *CheckoutSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Items = append([]LineItem(nil), s.Items...)
	if s.Attributes != nil {
		c.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			c.Attributes[k] = v
		}
	}
	if s.Customer != nil {
		cust := *s.Customer
		c.Customer = &cust
	}
	if s.Tracking != nil {
		t := *s.Tracking
		c.Tracking = &t
	}
	if s.Upsell != nil {
		u := *s.Upsell
		u.Items = append([]LineItem(nil), s.Upsell.Items...)
		c.Upsell = &u
	}
	if s.OrderClaimedAt != nil {
		t := *s.OrderClaimedAt
		c.OrderClaimedAt = &t
	}
	if s.PaidAt != nil {
		t := *s.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Snapshot is the body of POST /cart-session.
type Snapshot struct {
	SessionID     string            `json:"sessionId,omitempty"`
	Currency      string            `json:"currency" validate:"omitempty,len=3"`
	SubtotalCents int64             `json:"subtotalCents" validate:"gte=0"`
	ShippingCents int64             `json:"shippingCents" validate:"gte=0"`
	TotalCents    int64             `json:"totalCents" validate:"gte=0"`
	Items         []LineItem        `json:"items" validate:"required,min=1"`
	CartToken     string            `json:"cartToken,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	SourceURL     string            `json:"sourceUrl,omitempty"`
}
