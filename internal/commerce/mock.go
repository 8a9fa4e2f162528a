package commerce

import (
	"context"
	"strconv"
	"sync"

	"checkout-relay/internal/model"
)

// Mock implements Platform for testing.
// Each method can be configured via function fields; submitted orders are recorded.
type Mock struct {
	FindCustomerByEmailFunc func(ctx context.Context, shop model.ShopSettings, email string) (*Customer, error)
	CreateOrderFunc         func(ctx context.Context, shop model.ShopSettings, order *OrderPayload) (*CreatedOrder, error)
	ClearCartFunc           func(ctx context.Context, shop model.ShopSettings, cartID string) error
	LookupDiscountFunc      func(ctx context.Context, shop model.ShopSettings, code string) (*Discount, error)

	mu           sync.Mutex
	Orders       []*OrderPayload
	ClearedCarts []string
}

// FindCustomerByEmail calls the configured FindCustomerByEmailFunc or reports no customer.
func (m *Mock) FindCustomerByEmail(ctx context.Context, shop model.ShopSettings, email string) (*Customer, error) {
	if m.FindCustomerByEmailFunc != nil {
		return m.FindCustomerByEmailFunc(ctx, shop, email)
	}
	return nil, nil
}

// CreateOrder records the payload and calls CreateOrderFunc, or returns a sequential order.
func (m *Mock) CreateOrder(ctx context.Context, shop model.ShopSettings, order *OrderPayload) (*CreatedOrder, error) {
	m.mu.Lock()
	m.Orders = append(m.Orders, order)
	n := len(m.Orders)
	m.mu.Unlock()

	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, shop, order)
	}
	return &CreatedOrder{
		ID:     strconv.Itoa(5000 + n),
		Number: strconv.Itoa(1000 + n),
		Name:   "#" + strconv.Itoa(1000+n),
	}, nil
}

// OrderCount returns the number of CreateOrder calls.
func (m *Mock) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// ClearCart records the cart and calls ClearCartFunc if set.
func (m *Mock) ClearCart(ctx context.Context, shop model.ShopSettings, cartID string) error {
	m.mu.Lock()
	m.ClearedCarts = append(m.ClearedCarts, cartID)
	m.mu.Unlock()

	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx, shop, cartID)
	}
	return nil
}

// LookupDiscount calls the configured LookupDiscountFunc or returns not found.
func (m *Mock) LookupDiscount(ctx context.Context, shop model.ShopSettings, code string) (*Discount, error) {
	if m.LookupDiscountFunc != nil {
		return m.LookupDiscountFunc(ctx, shop, code)
	}
	return nil, model.NewNotFoundError("discount")
}

// Verify Mock implements Platform interface at compile time.
var _ Platform = (*Mock)(nil)
