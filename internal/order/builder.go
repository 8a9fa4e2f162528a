// Package order turns a paid checkout session into a commerce platform order.
package order

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"checkout-relay/internal/commerce"
	"checkout-relay/internal/model"
	"checkout-relay/internal/store"
)

// Placeholders for address fields the platform requires but checkout did not collect.
const (
	PlaceholderText  = "N/A"
	PlaceholderPhone = "+10000000000"
)

// DefaultGateway names the payment gateway on order transactions.
const DefaultGateway = "stripe"

// Confirmation is the processor's confirmation of a payment.
type Confirmation struct {
	ID          string // payment intent id
	AmountCents int64
	Currency    string
	Account     string // label of the account that processed the payment
	Gateway     string
	ConfirmedAt time.Time
}

// Ref identifies a created order. The zero value means no order was created.
type Ref struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

// IsZero reports whether no order was created.
func (r Ref) IsZero() bool {
	return r.OrderID == ""
}

// Builder creates orders on the commerce platform.
type Builder struct {
	platform commerce.Platform
	settings store.SettingsStore
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(platform commerce.Platform, settings store.SettingsStore, logger *slog.Logger) *Builder {
	return &Builder{platform: platform, settings: settings, logger: logger}
}

// CreateOrder creates the order for a paid session. Every failure returns the
// zero Ref with an OrderCreationFailed error; nothing is retried except a
// phone-number conflict on the embedded customer, which is resubmitted
// without the customer block.
func (b *Builder) CreateOrder(ctx context.Context, sessionID string, sess *model.CheckoutSession, conf Confirmation) (Ref, error) {
	log := b.logger.With(
		slog.String("session_id", sessionID),
		slog.String("payment_intent_id", conf.ID),
	)

	settings, err := store.LoadSettings(ctx, b.settings)
	if err != nil {
		return b.fail(ctx, log, "loading settings", err)
	}
	if !settings.Shop.Configured() {
		return b.fail(ctx, log, "shop domain or admin token not configured", nil)
	}
	if len(sess.Items) == 0 {
		return b.fail(ctx, log, "session has no line items", nil)
	}

	lines, dropped := BuildLineItems(sess.Items)
	for _, d := range dropped {
		log.WarnContext(ctx, "line item dropped: invalid variant id",
			slog.String("variant_id", d.VariantID),
			slog.String("title", d.Title),
		)
	}
	if len(lines) == 0 {
		return b.fail(ctx, log, "no line item has a valid variant id", nil)
	}

	amount := conf.AmountCents
	if amount <= 0 {
		amount = sess.TotalCents
	}
	gateway := conf.Gateway
	if gateway == "" {
		gateway = DefaultGateway
	}
	shippingTitle := settings.ShippingTitle
	if shippingTitle == "" {
		shippingTitle = "Shipping"
	}

	payload := &commerce.OrderPayload{
		Email:           customerEmail(sess.Customer),
		Currency:        model.NormalizeCurrency(conf.Currency, sess.Currency),
		Customer:        b.customerRef(ctx, log, settings.Shop, sess.Customer),
		LineItems:       lines,
		ShippingAddress: BuildAddress(sess.Customer),
		BillingAddress:  BuildAddress(sess.Customer),
		ShippingLine:    &commerce.ShippingLine{Title: shippingTitle, PriceCents: sess.ShippingCents},
		Transaction: &commerce.Transaction{
			Kind:          "sale",
			Status:        "success",
			AmountCents:   amount,
			Gateway:       gateway,
			Authorization: conf.ID,
		},
		FinancialStatus: "paid",
		NoteAttributes:  noteAttributes(sessionID, sess, conf),
		Tags:            tags(conf.Account),
		SourceName:      "checkout-relay",
		SendReceipt:     true,
	}

	created, err := b.submit(ctx, log, settings.Shop, payload)
	if err != nil {
		return b.fail(ctx, log, "order rejected", err)
	}

	log.InfoContext(ctx, "order created",
		slog.String("order_id", created.ID),
		slog.String("order_number", created.Number),
		slog.Int("line_items", len(lines)),
	)
	return Ref{OrderID: created.ID, OrderNumber: created.Number}, nil
}

// CreateAddOnOrder creates a separate order for upsell items charged after the main purchase.
func (b *Builder) CreateAddOnOrder(ctx context.Context, sess *model.CheckoutSession, items []model.LineItem, confirmationID string) (string, string, error) {
	log := b.logger.With(
		slog.String("session_id", sess.SessionID),
		slog.String("payment_intent_id", confirmationID),
	)

	settings, err := store.LoadSettings(ctx, b.settings)
	if err != nil {
		return "", "", err
	}
	if !settings.Shop.Configured() {
		return "", "", model.NewOrderCreationError("shop domain or admin token not configured", nil)
	}
	lines, _ := BuildLineItems(items)
	if len(lines) == 0 {
		return "", "", model.NewOrderCreationError("no line item has a valid variant id", nil)
	}
	var amount int64
	for _, l := range lines {
		amount += l.PriceCents * l.Quantity
	}

	label := sess.MatchedAccount
	if label == "" {
		label = sess.ProcessorAccount
	}
	payload := &commerce.OrderPayload{
		Email:           customerEmail(sess.Customer),
		Currency:        sess.Currency,
		Customer:        b.customerRef(ctx, log, settings.Shop, sess.Customer),
		LineItems:       lines,
		ShippingAddress: BuildAddress(sess.Customer),
		BillingAddress:  BuildAddress(sess.Customer),
		Transaction: &commerce.Transaction{
			Kind:          "sale",
			Status:        "success",
			AmountCents:   amount,
			Gateway:       DefaultGateway,
			Authorization: confirmationID,
		},
		FinancialStatus: "paid",
		NoteAttributes: map[string]string{
			"sessionId":       sess.SessionID,
			"paymentIntentId": confirmationID,
			"parentOrderId":   sess.ShopifyOrderID,
		},
		Tags:        append(tags(label), "upsell"),
		SourceName:  "checkout-relay",
		SendReceipt: true,
	}

	created, err := b.submit(ctx, log, settings.Shop, payload)
	if err != nil {
		return "", "", model.NewOrderCreationError("upsell order rejected", err)
	}
	return created.ID, created.Number, nil
}

// submit sends the order and retries once without the customer block when
// the platform reports a phone-number conflict.
func (b *Builder) submit(ctx context.Context, log *slog.Logger, shop model.ShopSettings, payload *commerce.OrderPayload) (*commerce.CreatedOrder, error) {
	created, err := b.platform.CreateOrder(ctx, shop, payload)
	if err == nil {
		return created, nil
	}

	var rejected *commerce.OrderRejectedError
	if !errors.As(err, &rejected) || !rejected.IsPhoneConflict() || payload.Customer == nil {
		return nil, err
	}

	log.WarnContext(ctx, "phone number conflict on customer, retrying without customer",
		slog.Int("status", rejected.StatusCode),
	)
	return b.platform.CreateOrder(ctx, shop, payload.WithoutCustomer())
}

// customerRef links an existing customer when one matches the email, and
// embeds a new customer otherwise. Lookup failures fall back to embedding.
func (b *Builder) customerRef(ctx context.Context, log *slog.Logger, shop model.ShopSettings, c *model.Customer) *commerce.CustomerRef {
	email := customerEmail(c)
	if email == "" {
		return nil
	}
	existing, err := b.platform.FindCustomerByEmail(ctx, shop, email)
	if err != nil {
		log.WarnContext(ctx, "customer lookup failed, embedding new customer", slog.String("error", err.Error()))
	}
	if existing != nil && existing.ID > 0 {
		log.DebugContext(ctx, "linking existing customer", slog.Int64("customer_id", existing.ID))
		return &commerce.CustomerRef{ID: existing.ID}
	}
	return &commerce.CustomerRef{
		Email:     email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
	}
}

func (b *Builder) fail(ctx context.Context, log *slog.Logger, reason string, err error) (Ref, error) {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.ErrorContext(ctx, "order creation failed", attrs...)
	return Ref{}, model.NewOrderCreationError(reason, err)
}

// NormalizeVariantID extracts the numeric variant id from a raw id such as
// "gid://shopify/ProductVariant/123" or "123". It reports false when no
// positive number remains.
func NormalizeVariantID(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndex(s, "/"); strings.HasPrefix(s, "gid://") && i >= 0 {
		s = s[i+1:]
	}
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// BuildLineItems converts snapshot lines to order lines. The unit price is
// LineItem.UnitCents, so discounts already applied to the line are kept.
// Lines without a valid variant id or quantity are returned as dropped.
func BuildLineItems(items []model.LineItem) ([]commerce.OrderLine, []model.LineItem) {
	var lines []commerce.OrderLine
	var dropped []model.LineItem
	for _, it := range items {
		raw := it.VariantID
		if raw == "" {
			raw = it.ID
		}
		id, ok := NormalizeVariantID(raw)
		if !ok || it.Quantity <= 0 {
			dropped = append(dropped, it)
			continue
		}
		unit := it.UnitCents()
		title := it.Title
		if it.VariantTitle != "" {
			title += " - " + it.VariantTitle
		}
		lines = append(lines, commerce.OrderLine{
			VariantID:  id,
			Quantity:   it.Quantity,
			PriceCents: unit,
			Title:      title,
		})
	}
	return lines, dropped
}

// BuildAddress maps the captured customer to an order address, filling
// required fields that are missing with placeholders.
func BuildAddress(c *model.Customer) commerce.Address {
	if c == nil {
		c = &model.Customer{}
	}
	return commerce.Address{
		FirstName: orPlaceholder(c.FirstName),
		LastName:  orPlaceholder(c.LastName),
		Address1:  orPlaceholder(c.Address1),
		Address2:  strings.TrimSpace(c.Address2),
		City:      orPlaceholder(c.City),
		Province:  strings.TrimSpace(c.Province),
		Zip:       orPlaceholder(c.Zip),
		Country:   orPlaceholder(c.Country),
		Phone:     phoneOrPlaceholder(c.Phone),
	}
}

func orPlaceholder(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return PlaceholderText
}

func phoneOrPlaceholder(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return PlaceholderPhone
}

func customerEmail(c *model.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Email)
}

func noteAttributes(sessionID string, sess *model.CheckoutSession, conf Confirmation) map[string]string {
	attrs := map[string]string{
		"sessionId":       sessionID,
		"paymentIntentId": conf.ID,
	}
	if conf.Account != "" {
		attrs["processorAccount"] = conf.Account
	}
	for k, v := range sess.Attributes {
		if strings.HasPrefix(strings.TrimPrefix(k, "_"), "utm_") && v != "" {
			attrs[strings.TrimPrefix(k, "_")] = v
		}
	}
	return attrs
}

func tags(account string) []string {
	t := []string{"checkout-relay"}
	if account != "" {
		t = append(t, "account:"+account)
	}
	return t
}
