package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"checkout-relay/internal/commerce"
	"checkout-relay/internal/model"
	"checkout-relay/internal/payment"
	"checkout-relay/internal/store"
	"checkout-relay/internal/webhook"
)

// stubPayments implements Payments with function fields.
type stubPayments struct {
	EnsureFunc func(ctx context.Context, req payment.EnsureRequest) (*payment.EnsureResult, error)
	HostedFunc func(ctx context.Context, req payment.HostedRequest) (*payment.HostedResult, error)
	UpsellFunc func(ctx context.Context, req payment.UpsellRequest) (*payment.UpsellResult, error)
}

func (s *stubPayments) EnsurePaymentIntent(ctx context.Context, req payment.EnsureRequest) (*payment.EnsureResult, error) {
	if s.EnsureFunc != nil {
		return s.EnsureFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (s *stubPayments) CreateHostedCheckout(ctx context.Context, req payment.HostedRequest) (*payment.HostedResult, error) {
	if s.HostedFunc != nil {
		return s.HostedFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (s *stubPayments) ChargeUpsell(ctx context.Context, req payment.UpsellRequest) (*payment.UpsellResult, error) {
	if s.UpsellFunc != nil {
		return s.UpsellFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

// stubWebhooks implements Webhooks with function fields.
type stubWebhooks struct {
	HandleFunc func(ctx context.Context, payload []byte, signature string) (*webhook.Ack, error)
	ManualFunc func(ctx context.Context, req webhook.ManualRequest) (*webhook.Ack, error)
}

func (s *stubWebhooks) HandleWebhook(ctx context.Context, payload []byte, signature string) (*webhook.Ack, error) {
	if s.HandleFunc != nil {
		return s.HandleFunc(ctx, payload, signature)
	}
	return nil, errors.New("not implemented")
}

func (s *stubWebhooks) CreateOrderManually(ctx context.Context, req webhook.ManualRequest) (*webhook.Ack, error) {
	if s.ManualFunc != nil {
		return s.ManualFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

type testEnv struct {
	h        *Handler
	mux      *http.ServeMux
	mem      *store.Memory
	payments *stubPayments
	webhooks *stubWebhooks
	platform *commerce.Mock
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		mem:      store.NewMemory(),
		payments: &stubPayments{},
		webhooks: &stubWebhooks{},
		platform: &commerce.Mock{},
	}
	env.h = New(Deps{
		Payments:  env.payments,
		Webhooks:  env.webhooks,
		Discounts: env.platform,
		Sessions:  env.mem,
		Settings:  env.mem,
		Stats:     env.mem,
	}, logger)
	env.mux = http.NewServeMux()
	env.h.RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func errorCode(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error.Code
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv()

	for _, path := range []string{"/health", "/healthz"} {
		w := env.do("GET", path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: Status = %d, want %d", path, w.Code, http.StatusOK)
		}
		var resp healthResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Status != "ok" {
			t.Errorf("%s: Status = %s, want ok", path, resp.Status)
		}
	}
}

func TestHandlePaymentIntent(t *testing.T) {
	env := newTestEnv()
	var got payment.EnsureRequest
	env.payments.EnsureFunc = func(ctx context.Context, req payment.EnsureRequest) (*payment.EnsureResult, error) {
		got = req
		if req.SessionID == "missing" {
			return nil, model.NewSessionNotFoundError(req.SessionID)
		}
		if req.SessionID == "broke" {
			return nil, model.NewNoActiveAccountError()
		}
		return &payment.EnsureResult{ClientSecret: "pi_1_secret", PaymentIntentID: "pi_1", AmountCents: 2500, Currency: "eur", Account: "A"}, nil
	}

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"ok", map[string]interface{}{"sessionId": "s1", "shippingCents": 500}, http.StatusOK, ""},
		{"missing session id", map[string]interface{}{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative shipping", map[string]interface{}{"sessionId": "s1", "shippingCents": -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid json", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown session", map[string]interface{}{"sessionId": "missing"}, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"no account", map[string]interface{}{"sessionId": "broke"}, http.StatusServiceUnavailable, "NO_ACTIVE_ACCOUNT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/payment-intent", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(w.Body.Bytes()); code != tt.wantCode {
					t.Errorf("Code = %q, want %q", code, tt.wantCode)
				}
			}
		})
	}

	w := env.do("POST", "/payment-intent", map[string]interface{}{"sessionId": "s1", "shippingCents": 500, "customer": map[string]string{"email": "a@b.c"}})
	if got.ShippingCents != 500 {
		t.Errorf("ShippingCents = %d, want 500", got.ShippingCents)
	}
	if got.Customer == nil || got.Customer.Email != "a@b.c" {
		t.Errorf("Customer = %+v", got.Customer)
	}
	if strings.Contains(w.Body.String(), `"account"`) {
		t.Errorf("account label leaked in response: %s", w.Body.String())
	}
}

func TestHandleHostedCheckout(t *testing.T) {
	env := newTestEnv()
	env.payments.HostedFunc = func(ctx context.Context, req payment.HostedRequest) (*payment.HostedResult, error) {
		return &payment.HostedResult{CheckoutID: "cs_1", URL: "https://pay.example/cs_1", Account: "B"}, nil
	}

	w := env.do("POST", "/checkout-session", map[string]interface{}{"sessionId": "s1", "successUrl": "https://shop.example/ok"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var res payment.HostedResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.URL != "https://pay.example/cs_1" {
		t.Errorf("URL = %q", res.URL)
	}

	w = env.do("POST", "/checkout-session", map[string]interface{}{"sessionId": "s1", "successUrl": "not a url"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad url: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleUpsellCharge(t *testing.T) {
	env := newTestEnv()
	env.payments.UpsellFunc = func(ctx context.Context, req payment.UpsellRequest) (*payment.UpsellResult, error) {
		if req.SessionID == "unpaid" {
			return nil, model.NewConflictError("original payment not confirmed")
		}
		return &payment.UpsellResult{PaymentIntentID: "pi_up", AmountCents: 900, Currency: "eur"}, nil
	}
	item := map[string]interface{}{"variantId": "111", "title": "Socks", "quantity": 1, "linePriceCents": 900}

	w := env.do("POST", "/upsell-charge", map[string]interface{}{"sessionId": "s1", "items": []interface{}{item}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/upsell-charge", map[string]interface{}{"sessionId": "unpaid", "items": []interface{}{item}})
	if w.Code != http.StatusConflict {
		t.Errorf("unpaid: Status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = env.do("POST", "/upsell-charge", map[string]interface{}{"sessionId": "s1", "items": []interface{}{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no items: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleWebhook(t *testing.T) {
	env := newTestEnv()
	var gotPayload []byte
	var gotSig string
	env.webhooks.HandleFunc = func(ctx context.Context, payload []byte, signature string) (*webhook.Ack, error) {
		gotPayload, gotSig = payload, signature
		switch signature {
		case "bad":
			return nil, model.NewInvalidSignatureError()
		case "none":
			return nil, model.NewNoWebhookSecretsError()
		}
		return &webhook.Ack{Received: true, Status: webhook.StatusProcessed, OrderID: "5001"}, nil
	}

	raw := `{"id":"evt_1",  "type":"payment_intent.succeeded"}`
	tests := []struct {
		sig        string
		wantStatus int
	}{
		{"t=1,v1=abc", http.StatusOK},
		{"bad", http.StatusBadRequest},
		{"none", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("POST", "/webhooks/payments", strings.NewReader(raw))
		req.Header.Set(SignatureHeader, tt.sig)
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, req)

		if w.Code != tt.wantStatus {
			t.Errorf("sig %q: Status = %d, want %d", tt.sig, w.Code, tt.wantStatus)
		}
		if string(gotPayload) != raw {
			t.Errorf("payload altered: %q", gotPayload)
		}
		if gotSig != tt.sig {
			t.Errorf("signature = %q, want %q", gotSig, tt.sig)
		}
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	env := newTestEnv()
	called := false
	env.webhooks.HandleFunc = func(ctx context.Context, payload []byte, signature string) (*webhook.Ack, error) {
		called = true
		return &webhook.Ack{Received: true}, nil
	}

	big := strings.Repeat("a", MaxRequestBodySize+1)
	w := env.do("POST", "/webhooks/payments", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("dispatcher called for oversized payload")
	}
}

func TestHandleCreateOrder(t *testing.T) {
	env := newTestEnv()
	env.webhooks.ManualFunc = func(ctx context.Context, req webhook.ManualRequest) (*webhook.Ack, error) {
		switch req.SessionID {
		case "s1":
			return &webhook.Ack{Status: webhook.StatusProcessed, OrderID: "5001", OrderNumber: "1001"}, nil
		case "dup":
			return &webhook.Ack{Status: webhook.StatusAlreadyProcessed, OrderID: "5001", OrderNumber: "1001"}, nil
		case "busy":
			return &webhook.Ack{Status: webhook.StatusInProgress}, nil
		case "fail":
			return &webhook.Ack{Status: webhook.StatusError, Error: "order creation failed"}, nil
		}
		return nil, model.NewSessionNotFoundError(req.SessionID)
	}

	tests := []struct {
		session    string
		wantStatus int
		wantOK     bool
	}{
		{"s1", http.StatusOK, true},
		{"dup", http.StatusOK, true},
		{"busy", http.StatusAccepted, false},
		{"fail", http.StatusBadGateway, false},
		{"nope", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.session, func(t *testing.T) {
			w := env.do("POST", "/shopify/create-order", map[string]interface{}{"sessionId": tt.session, "paymentIntentId": "pi_1"})
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp createOrderResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", resp.OK, tt.wantOK)
			}
			if tt.wantOK && resp.OrderNumber != "1001" {
				t.Errorf("OrderNumber = %q, want 1001", resp.OrderNumber)
			}
			if !tt.wantOK && resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}

	w := env.do("POST", "/shopify/create-order", map[string]interface{}{"sessionId": "s1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing intent id: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCartSessionRoundTrip(t *testing.T) {
	env := newTestEnv()
	snap := map[string]interface{}{
		"currency":      "EUR",
		"subtotalCents": 2000,
		"shippingCents": 500,
		"totalCents":    2500,
		"cartToken":     "c1",
		"attributes":    map[string]string{"_fbp": "fb.1.1.1"},
		"items": []interface{}{
			map[string]interface{}{"id": "1", "variantId": "111", "title": "Mug", "quantity": 2, "unitPriceCents": 1000, "linePriceCents": 2000},
		},
	}

	w := env.do("POST", "/cart-session", snap)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var created putSessionResponse
	json.NewDecoder(w.Body).Decode(&created)
	if created.SessionID == "" {
		t.Fatal("no session id issued")
	}

	w = env.do("GET", "/cart-session?sessionId="+created.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET Status = %d", w.Code)
	}
	var view sessionView
	json.NewDecoder(w.Body).Decode(&view)
	if view.Currency != "eur" {
		t.Errorf("Currency = %q, want eur", view.Currency)
	}
	if view.TotalCents != 2500 || len(view.Items) != 1 {
		t.Errorf("view = %+v", view)
	}

	stored, err := env.mem.GetSession(context.Background(), created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ClientIP == "" {
		t.Error("client IP not captured")
	}
}

func TestCartSessionResubmitKeepsPaymentRefs(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	id := "3f1c2d4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	env.mem.PutSession(ctx, &model.CheckoutSession{
		SessionID:        id,
		Currency:         "eur",
		TotalCents:       2500,
		PaymentIntentID:  "pi_1",
		ProcessorAccount: "A",
		Items:            []model.LineItem{{ID: "1", VariantID: "111", Quantity: 1, LinePriceCents: 2500}},
	})

	w := env.do("POST", "/cart-session", map[string]interface{}{
		"sessionId":  id,
		"totalCents": 4000,
		"items":      []interface{}{map[string]interface{}{"id": "1", "variantId": "111", "quantity": 2, "linePriceCents": 4000}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}

	stored, _ := env.mem.GetSession(ctx, id)
	if stored.TotalCents != 4000 {
		t.Errorf("TotalCents = %d, want 4000", stored.TotalCents)
	}
	if stored.PaymentIntentID != "pi_1" || stored.ProcessorAccount != "A" {
		t.Errorf("payment refs lost: %+v", stored)
	}
}

func TestCartSessionRejections(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	paid := "9b2e7c1a-0d3f-4e5a-8b6c-7d8e9f0a1b2c"
	env.mem.PutSession(ctx, &model.CheckoutSession{SessionID: paid, ShopifyOrderID: "5001"})
	items := []interface{}{map[string]interface{}{"id": "1", "variantId": "111", "quantity": 1}}

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{"no items", map[string]interface{}{"totalCents": 100}, http.StatusBadRequest},
		{"non uuid id", map[string]interface{}{"sessionId": "abc", "items": items}, http.StatusBadRequest},
		{"bad currency", map[string]interface{}{"currency": "euro", "items": items}, http.StatusBadRequest},
		{"already ordered", map[string]interface{}{"sessionId": paid, "items": items}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/cart-session", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	w := env.do("GET", "/cart-session?sessionId=unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown: Status = %d, want %d", w.Code, http.StatusNotFound)
	}
	w = env.do("GET", "/cart-session", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestConfigSecretsAreWriteOnly(t *testing.T) {
	env := newTestEnv()

	update := map[string]interface{}{
		"accounts": []interface{}{
			map[string]interface{}{"label": "A", "secretKey": "sk_live_a", "publishableKey": "pk_a", "webhookSecret": "whsec_a", "active": true},
		},
		"shopDomain": "acme.myshopify.com",
		"adminToken": "shpat_secret",
		"pixelToken": "EAAB_secret",
	}
	w := env.do("POST", "/config", update)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}

	w = env.do("GET", "/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET Status = %d", w.Code)
	}
	body := w.Body.String()
	for _, secret := range []string{"sk_live_a", "whsec_a", "shpat_secret", "EAAB_secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("secret %q echoed in /config response", secret)
		}
	}
	var view model.SettingsView
	json.Unmarshal(w.Body.Bytes(), &view)
	if len(view.Accounts) != model.AccountSlots {
		t.Errorf("Accounts = %d, want %d", len(view.Accounts), model.AccountSlots)
	}
	if !view.HasAdminToken || view.ShopDomain != "acme.myshopify.com" {
		t.Errorf("view = %+v", view)
	}

	// Empty secrets keep the stored values.
	update["accounts"] = []interface{}{map[string]interface{}{"label": "A", "publishableKey": "pk_a2", "active": true}}
	delete(update, "adminToken")
	env.do("POST", "/config", update)
	stored, _ := env.mem.GetSettings(context.Background())
	if stored.Accounts[0].SecretKey != "sk_live_a" || stored.Shop.AdminToken != "shpat_secret" {
		t.Errorf("secrets not preserved: %+v", stored.Accounts[0])
	}
	if stored.Accounts[0].PublishableKey != "pk_a2" {
		t.Errorf("PublishableKey = %q, want pk_a2", stored.Accounts[0].PublishableKey)
	}
}

func TestConfigRejectsDuplicateLabels(t *testing.T) {
	env := newTestEnv()
	env.do("POST", "/config", map[string]interface{}{
		"accounts": []interface{}{
			map[string]interface{}{"label": "main", "secretKey": "sk_1", "publishableKey": "pk_1", "active": true},
		},
	})

	w := env.do("POST", "/config", map[string]interface{}{
		"accounts": []interface{}{
			map[string]interface{}{"label": "main", "publishableKey": "pk_1", "active": true},
			map[string]interface{}{"label": "main", "secretKey": "sk_2", "publishableKey": "pk_2", "active": true},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400\nBody: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "VALIDATION_ERROR") {
		t.Errorf("Body = %s", w.Body.String())
	}

	stored, _ := env.mem.GetSettings(context.Background())
	if stored.Accounts[1].SecretKey != "" || stored.Accounts[1].Label == "main" {
		t.Errorf("rejected update was persisted: %+v", stored.Accounts[1])
	}
}

func TestHandleOrderStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.mem.PutSession(ctx, &model.CheckoutSession{SessionID: "s1"})
	env.mem.PutSession(ctx, &model.CheckoutSession{SessionID: "s2", PaymentStatus: model.StatusPaid, ShopifyOrderID: "5001", ShopifyOrderNumber: "1001"})

	w := env.do("GET", "/order-status?sessionId=s1", nil)
	var resp orderStatusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.PaymentStatus != "pending" {
		t.Errorf("PaymentStatus = %q, want pending", resp.PaymentStatus)
	}

	w = env.do("GET", "/order-status?sessionId=s2", nil)
	resp = orderStatusResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.PaymentStatus != model.StatusPaid || resp.OrderNumber != "1001" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleDiscount(t *testing.T) {
	env := newTestEnv()
	env.platform.LookupDiscountFunc = func(ctx context.Context, shop model.ShopSettings, code string) (*commerce.Discount, error) {
		if code == "SAVE10" {
			return &commerce.Discount{Code: code, Active: true, Percentage: 0.1}, nil
		}
		return nil, model.NewNotFoundError("discount")
	}

	w := env.do("GET", "/discount?code=SAVE10", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unconfigured shop: Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	env.mem.UpdateSettings(context.Background(), func(s *model.Settings) error {
		s.Shop = model.ShopSettings{Domain: "acme.myshopify.com", AdminToken: "shpat_x"}
		return nil
	})

	w = env.do("GET", "/discount?code=SAVE10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var d commerce.Discount
	json.NewDecoder(w.Body).Decode(&d)
	if d.Percentage != 0.1 {
		t.Errorf("Percentage = %v, want 0.1", d.Percentage)
	}

	w = env.do("GET", "/discount?code=NOPE", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown code: Status = %d, want %d", w.Code, http.StatusNotFound)
	}
	w = env.do("GET", "/discount", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing code: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleStats(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.h.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	env.mem.RecordPayment(ctx, "2026-03-01", "A", 1000)
	env.mem.RecordPayment(ctx, "2026-03-02", "B", 1500)
	env.mem.RecordPayment(ctx, "2026-03-02", "A", 500)

	w := env.do("GET", "/stats?from=2026-03-01&to=2026-03-02", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var resp statsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.TotalCents != 3000 || resp.TotalTransactions != 3 || len(resp.Days) != 2 {
		t.Errorf("resp = %+v", resp)
	}

	w = env.do("GET", "/stats", nil)
	resp = statsResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.From != "2026-03-02" || resp.TotalCents != 2000 {
		t.Errorf("default range: %+v", resp)
	}

	for _, q := range []string{"from=03-01-2026", "from=2026-03-02&to=2026-03-01", "from=2024-01-01&to=2026-03-01"} {
		w = env.do("GET", "/stats?"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: Status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	env := newTestEnv()
	env.payments.EnsureFunc = func(ctx context.Context, req payment.EnsureRequest) (*payment.EnsureResult, error) {
		return nil, errors.New("firestore: connection reset by peer 10.0.0.7")
	}

	w := env.do("POST", "/payment-intent", map[string]interface{}{"sessionId": "s1"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "10.0.0.7") {
		t.Error("internal error details leaked")
	}
	if code := errorCode(w.Body.Bytes()); code != "INTERNAL_ERROR" {
		t.Errorf("Code = %q, want INTERNAL_ERROR", code)
	}
}
