package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"checkout-relay/internal/commerce"
	"checkout-relay/internal/model"
	"checkout-relay/internal/transport"
)

// DefaultAPIVersion is used when the settings document leaves the version empty.
const DefaultAPIVersion = "2024-10"

const (
	adminTokenHeader      = "X-Shopify-Access-Token"
	storefrontTokenHeader = "X-Shopify-Storefront-Access-Token"
	maxResponseBytes      = 1 << 20
)

// Config holds client settings that are fixed for the process lifetime.
// Shop credentials are not here: they arrive per call from the settings document.
type Config struct {
	Timeout     time.Duration
	Fingerprint transport.Fingerprint // applied to Storefront calls only
	BaseURL     string                // overrides https://{domain}; used by tests
}

// Client talks to the Shopify Admin and Storefront APIs.
type Client struct {
	admin      *http.Client
	storefront *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a Shopify client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		admin:      transport.NewHTTPClient(cfg.Timeout, transport.FingerprintDefault),
		storefront: transport.NewHTTPClient(cfg.Timeout, cfg.Fingerprint),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

func (c *Client) shopURL(shop model.ShopSettings) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(shop.Domain, "https://"), "/")
	return "https://" + domain
}

func apiVersion(shop model.ShopSettings) string {
	if shop.APIVersion != "" {
		return shop.APIVersion
	}
	return DefaultAPIVersion
}

func (c *Client) adminURL(shop model.ShopSettings, path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.shopURL(shop), apiVersion(shop), path)
}

// FindCustomerByEmail searches customers by exact email.
func (c *Client) FindCustomerByEmail(ctx context.Context, shop model.ShopSettings, email string) (*commerce.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("query", "email:"+email)
	q.Set("limit", "1")
	q.Set("fields", "id,email,first_name,last_name,phone")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminURL(shop, "customers/search.json")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating customer search request: %w", err)
	}
	req.Header.Set(adminTokenHeader, shop.AdminToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.admin.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var result CustomerSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding customer search response: %w", err)
	}
	for _, sc := range result.Customers {
		if strings.EqualFold(sc.Email, email) {
			return &commerce.Customer{
				ID:        sc.ID,
				Email:     sc.Email,
				FirstName: sc.FirstName,
				LastName:  sc.LastName,
				Phone:     sc.Phone,
			}, nil
		}
	}
	return nil, nil
}

// CreateOrder posts a paid order. 4xx answers other than 429 become
// *commerce.OrderRejectedError carrying the raw body.
func (c *Client) CreateOrder(ctx context.Context, shop model.ShopSettings, order *commerce.OrderPayload) (*commerce.CreatedOrder, error) {
	payload, err := json.Marshal(OrderRequest{Order: toShopifyOrder(order)})
	if err != nil {
		return nil, fmt.Errorf("marshaling order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.adminURL(shop, "orders.json"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating order request: %w", err)
	}
	req.Header.Set(adminTokenHeader, shop.AdminToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.admin.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return nil, &commerce.OrderRejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	default:
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var created OrderResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	if created.Order.ID == 0 {
		return nil, model.NewUpstreamError("Shopify", errors.New("order response without id"))
	}
	return &commerce.CreatedOrder{
		ID:     strconv.FormatInt(created.Order.ID, 10),
		Number: strconv.FormatInt(created.Order.OrderNumber, 10),
		Name:   created.Order.Name,
	}, nil
}

// LookupDiscount resolves a discount code through the Admin GraphQL API.
func (c *Client) LookupDiscount(ctx context.Context, shop model.ShopSettings, code string) (*commerce.Discount, error) {
	var data discountLookupData
	err := c.graphQL(ctx, c.admin, c.adminURL(shop, "graphql.json"), adminTokenHeader, shop.AdminToken,
		discountLookupQuery, map[string]any{"code": code}, &data)
	if err != nil {
		return nil, err
	}
	node := data.CodeDiscountNodeByCode
	if node == nil {
		return nil, model.NewNotFoundError("discount")
	}

	d := &commerce.Discount{
		Code:   code,
		Title:  node.CodeDiscount.Title,
		Active: node.CodeDiscount.Status == "ACTIVE",
	}
	if gets := node.CodeDiscount.CustomerGets; gets != nil {
		if p := gets.Value.Percentage; p != nil {
			d.Percentage = *p
		}
		if a := gets.Value.Amount; a != nil {
			d.AmountCents = model.ParseCents(a.Amount)
			d.Currency = strings.ToLower(a.CurrencyCode)
		}
	}
	return d, nil
}

// ClearCart removes all lines from a storefront cart.
func (c *Client) ClearCart(ctx context.Context, shop model.ShopSettings, cartID string) error {
	if cartID == "" {
		return nil
	}
	if shop.StorefrontToken == "" {
		return model.NewValidationError("storefrontToken", "not configured")
	}
	gid := CartGID(cartID)
	endpoint := fmt.Sprintf("%s/api/%s/graphql.json", c.shopURL(shop), apiVersion(shop))

	var lines cartLinesData
	if err := c.graphQL(ctx, c.storefront, endpoint, storefrontTokenHeader, shop.StorefrontToken,
		cartLinesQuery, map[string]any{"id": gid}, &lines); err != nil {
		return err
	}
	if lines.Cart == nil || len(lines.Cart.Lines.Edges) == 0 {
		return nil
	}

	ids := make([]string, 0, len(lines.Cart.Lines.Edges))
	for _, e := range lines.Cart.Lines.Edges {
		ids = append(ids, e.Node.ID)
	}

	var removed cartLinesRemoveData
	if err := c.graphQL(ctx, c.storefront, endpoint, storefrontTokenHeader, shop.StorefrontToken,
		cartLinesRemoveMutation, map[string]any{"cartId": gid, "lineIds": ids}, &removed); err != nil {
		return err
	}
	if ue := removed.CartLinesRemove.UserErrors; len(ue) > 0 {
		return fmt.Errorf("cartLinesRemove: %s", ue[0].Message)
	}

	c.logger.DebugContext(ctx, "storefront cart cleared",
		slog.String("cart_id", gid),
		slog.Int("lines", len(ids)),
	)
	return nil
}

// CartGID turns a storefront cart token into a Cart global id.
func CartGID(token string) string {
	if strings.HasPrefix(token, "gid://") {
		return token
	}
	return "gid://shopify/Cart/" + token
}

func (c *Client) graphQL(ctx context.Context, hc *http.Client, endpoint, header, token, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set(header, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, body)
	}

	var gr graphQLResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return model.NewUpstreamError("Shopify", fmt.Errorf("graphql: %s", gr.Errors[0].Message))
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decoding graphql data: %w", err)
	}
	return nil
}

// parseErrorResponse converts a Shopify error status to an APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var shopErr struct {
		Errors json.RawMessage `json:"errors"`
	}
	json.Unmarshal(body, &shopErr) // Best effort parse
	detail := string(shopErr.Errors)
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}

	switch {
	case statusCode == http.StatusNotFound:
		return model.NewNotFoundError("Shopify resource")
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &model.APIError{
			Code:       "SHOP_UNAUTHORIZED",
			Message:    "Shopify rejected the configured credentials",
			StatusCode: http.StatusBadGateway,
			Err:        fmt.Errorf("status %d: %s", statusCode, detail),
		}
	case statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests:
		return model.NewValidationError("request", detail)
	default:
		return model.NewUpstreamError("Shopify", fmt.Errorf("status %d: %s", statusCode, detail))
	}
}

func toShopifyOrder(p *commerce.OrderPayload) ShopifyOrder {
	o := ShopifyOrder{
		Email:              p.Email,
		Currency:           strings.ToUpper(p.Currency),
		FinancialStatus:    p.FinancialStatus,
		Note:               p.Note,
		Tags:               strings.Join(p.Tags, ", "),
		SourceName:         p.SourceName,
		SendReceipt:        p.SendReceipt,
		InventoryBehaviour: "decrement_obeying_policy",
		ShippingAddress:    toShopifyAddress(p.ShippingAddress),
		BillingAddress:     toShopifyAddress(p.BillingAddress),
	}
	if cust := p.Customer; cust != nil {
		if cust.ID > 0 {
			o.Customer = &OrderCustomer{ID: cust.ID}
		} else {
			o.Customer = &OrderCustomer{
				Email:     cust.Email,
				FirstName: cust.FirstName,
				LastName:  cust.LastName,
				Phone:     cust.Phone,
			}
		}
	}
	for _, l := range p.LineItems {
		o.LineItems = append(o.LineItems, OrderLineItem{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			Price:     model.FormatCents(l.PriceCents),
			Title:     l.Title,
		})
	}
	if sl := p.ShippingLine; sl != nil {
		o.ShippingLines = []OrderShippingLine{{
			Title: sl.Title,
			Code:  sl.Title,
			Price: model.FormatCents(sl.PriceCents),
		}}
	}
	if tx := p.Transaction; tx != nil {
		o.Transactions = []OrderTransaction{{
			Kind:          tx.Kind,
			Status:        tx.Status,
			Amount:        model.FormatCents(tx.AmountCents),
			Gateway:       tx.Gateway,
			Authorization: tx.Authorization,
		}}
	}
	if len(p.NoteAttributes) > 0 {
		names := make([]string, 0, len(p.NoteAttributes))
		for k := range p.NoteAttributes {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			o.NoteAttributes = append(o.NoteAttributes, OrderNoteAttribute{Name: k, Value: p.NoteAttributes[k]})
		}
	}
	return o
}

func toShopifyAddress(a commerce.Address) *ShopifyAddress {
	return &ShopifyAddress{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Zip:       a.Zip,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}

var _ commerce.Platform = (*Client)(nil)
