// Package commerce defines the interface to the commerce back-end that
// receives orders, owns customers and carts, and validates discount codes.
package commerce

import (
	"context"
	"fmt"
	"strings"

	"checkout-relay/internal/model"
)

// Platform abstracts the commerce back-end. Credentials are passed per call
// because they are editable at runtime through the settings document.
type Platform interface {
	// FindCustomerByEmail returns the existing customer with this email, or nil
	// when there is none.
	FindCustomerByEmail(ctx context.Context, shop model.ShopSettings, email string) (*Customer, error)

	// CreateOrder submits a paid order. Rejections by the platform are returned
	// as *OrderRejectedError.
	CreateOrder(ctx context.Context, shop model.ShopSettings, order *OrderPayload) (*CreatedOrder, error)

	// ClearCart removes every line from a storefront cart. Clearing an empty
	// or unknown cart is not an error.
	ClearCart(ctx context.Context, shop model.ShopSettings, cartID string) error

	// LookupDiscount resolves a discount code, returning model.ErrNotFound when it does not exist.
	LookupDiscount(ctx context.Context, shop model.ShopSettings, code string) (*Discount, error)
}

// Customer is an existing platform customer.
type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// CustomerRef is the customer block of an order. A positive ID links an
// existing customer; otherwise a new customer is created from the fields.
type CustomerRef struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Address is a shipping or billing address on an order.
type Address struct {
	FirstName string
	LastName  string
	Address1  string
	Address2  string
	City      string
	Province  string
	Zip       string
	Country   string
	Phone     string
}

// OrderLine is one variant line. PriceCents is the per-unit price actually charged.
type OrderLine struct {
	VariantID  int64
	Quantity   int64
	PriceCents int64
	Title      string
}

// ShippingLine is a fixed-price shipping charge.
type ShippingLine struct {
	Title      string
	PriceCents int64
}

// Transaction records the processor payment on the order.
type Transaction struct {
	Kind          string // "sale"
	Status        string // "success"
	AmountCents   int64
	Gateway       string
	Authorization string // processor confirmation id
}

// OrderPayload is a platform-agnostic order.
type OrderPayload struct {
	Email           string
	Currency        string
	Customer        *CustomerRef
	LineItems       []OrderLine
	ShippingAddress Address
	BillingAddress  Address
	ShippingLine    *ShippingLine
	Transaction     *Transaction
	FinancialStatus string
	Note            string
	NoteAttributes  map[string]string
	Tags            []string
	SourceName      string
	SendReceipt     bool
}

// WithoutCustomer returns a copy of the payload with the customer block removed.
func (p *OrderPayload) WithoutCustomer() *OrderPayload {
	cp := *p
	cp.Customer = nil
	return &cp
}

// CreatedOrder identifies an order accepted by the platform.
type CreatedOrder struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// Discount is a resolved discount code.
type Discount struct {
	Code        string  `json:"code"`
	Title       string  `json:"title,omitempty"`
	Active      bool    `json:"active"`
	Percentage  float64 `json:"percentage,omitempty"` // 0.1 means 10%
	AmountCents int64   `json:"amountCents,omitempty"`
	Currency    string  `json:"currency,omitempty"`
}

// OrderRejectedError is a 4xx rejection of an order submission.
type OrderRejectedError struct {
	StatusCode int
	Body       string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *OrderRejectedError) Unwrap() error {
	return model.ErrOrderCreationFailed
}

// IsPhoneConflict reports whether the platform refused the embedded customer
// because its phone number already belongs to another customer.
func (e *OrderRejectedError) IsPhoneConflict() bool {
	body := strings.ToLower(e.Body)
	if !strings.Contains(body, "phone") {
		return false
	}
	return strings.Contains(body, "taken") || strings.Contains(body, "already")
}
