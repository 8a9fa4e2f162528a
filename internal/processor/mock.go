package processor

import (
	"context"
	"fmt"
	"sync"

	"checkout-relay/internal/model"
)

// Mock implements Gateway for testing. Unset function fields fall back to an
// in-memory intent book so tests only override what they assert on.
type Mock struct {
	CreateIntentFunc         func(ctx context.Context, acct model.ProcessorAccount, req IntentRequest) (*Intent, error)
	GetIntentFunc            func(ctx context.Context, acct model.ProcessorAccount, id string) (*Intent, error)
	UpdateIntentFunc         func(ctx context.Context, acct model.ProcessorAccount, id string, req IntentRequest) (*Intent, error)
	CreateCustomerFunc       func(ctx context.Context, acct model.ProcessorAccount, req CustomerRequest) (string, error)
	ChargeOffSessionFunc     func(ctx context.Context, acct model.ProcessorAccount, req OffSessionCharge) (*Intent, error)
	CreateHostedCheckoutFunc func(ctx context.Context, acct model.ProcessorAccount, req HostedCheckoutRequest) (*HostedCheckout, error)

	mu      sync.Mutex
	seq     int
	intents map[string]*Intent
	// Calls records the account label used for each call, keyed by method name.
	Calls map[string][]string
}

func (m *Mock) record(method string, acct model.ProcessorAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string][]string)
	}
	m.Calls[method] = append(m.Calls[method], acct.Label)
}

// CallCount returns how many times method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls[method])
}

// Intent returns a stored intent by id, or nil.
func (m *Mock) Intent(id string) *Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[id]; ok {
		cp := *in
		return &cp
	}
	return nil
}

// PutIntent stores an intent so GetIntent can find it.
func (m *Mock) PutIntent(in *Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intents == nil {
		m.intents = make(map[string]*Intent)
	}
	cp := *in
	m.intents[in.ID] = &cp
}

func (m *Mock) CreateIntent(ctx context.Context, acct model.ProcessorAccount, req IntentRequest) (*Intent, error) {
	m.record("CreateIntent", acct)
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, acct, req)
	}
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("pi_mock_%d", m.seq)
	m.mu.Unlock()
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       "requires_payment_method",
		Metadata:     req.Metadata,
		CustomerID:   req.CustomerID,
	}
	m.PutIntent(in)
	return in, nil
}

func (m *Mock) GetIntent(ctx context.Context, acct model.ProcessorAccount, id string) (*Intent, error) {
	m.record("GetIntent", acct)
	if m.GetIntentFunc != nil {
		return m.GetIntentFunc(ctx, acct, id)
	}
	if in := m.Intent(id); in != nil {
		return in, nil
	}
	return nil, model.NewNotFoundError("payment intent")
}

func (m *Mock) UpdateIntent(ctx context.Context, acct model.ProcessorAccount, id string, req IntentRequest) (*Intent, error) {
	m.record("UpdateIntent", acct)
	if m.UpdateIntentFunc != nil {
		return m.UpdateIntentFunc(ctx, acct, id, req)
	}
	in := m.Intent(id)
	if in == nil {
		return nil, model.NewNotFoundError("payment intent")
	}
	in.Amount = req.Amount
	in.Currency = req.Currency
	in.Metadata = req.Metadata
	m.PutIntent(in)
	return in, nil
}

func (m *Mock) CreateCustomer(ctx context.Context, acct model.ProcessorAccount, req CustomerRequest) (string, error) {
	m.record("CreateCustomer", acct)
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, acct, req)
	}
	return "cus_mock", nil
}

func (m *Mock) ChargeOffSession(ctx context.Context, acct model.ProcessorAccount, req OffSessionCharge) (*Intent, error) {
	m.record("ChargeOffSession", acct)
	if m.ChargeOffSessionFunc != nil {
		return m.ChargeOffSessionFunc(ctx, acct, req)
	}
	return &Intent{
		ID:              "pi_mock_offsession",
		Amount:          req.Amount,
		AmountReceived:  req.Amount,
		Currency:        req.Currency,
		Status:          StatusSucceeded,
		Metadata:        req.Metadata,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
	}, nil
}

func (m *Mock) CreateHostedCheckout(ctx context.Context, acct model.ProcessorAccount, req HostedCheckoutRequest) (*HostedCheckout, error) {
	m.record("CreateHostedCheckout", acct)
	if m.CreateHostedCheckoutFunc != nil {
		return m.CreateHostedCheckoutFunc(ctx, acct, req)
	}
	return &HostedCheckout{ID: "cs_mock", URL: "https://checkout.example/cs_mock"}, nil
}

var _ Gateway = (*Mock)(nil)
