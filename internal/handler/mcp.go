// MCP transport for operators and agents using the official MCP Go SDK.
// Exposes read-only session, order and stats tools plus payment preparation.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"checkout-relay/internal/model"
	"checkout-relay/internal/payment"
	"checkout-relay/internal/store"
)

// SessionInput identifies a checkout session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID,required"`
}

// PaymentIntentInput is the input schema for ensure_payment_intent.
type PaymentIntentInput struct {
	SessionID     string `json:"session_id" jsonschema:"checkout session ID,required"`
	ShippingCents int64  `json:"shipping_cents,omitempty" jsonschema:"shipping override in minor units"`
}

// StatsInput is the input schema for get_daily_stats.
type StatsInput struct {
	From string `json:"from,omitempty" jsonschema:"first day YYYY-MM-DD (default today)"`
	To   string `json:"to,omitempty" jsonschema:"last day YYYY-MM-DD (default today)"`
}

// NewMCPServer creates an MCP server with the relay tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "checkout-relay",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Checkout relay. Inspect checkout sessions and orders, " +
				"prepare payments and read daily payment totals.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_checkout_session",
		Description: "Get the cart snapshot of a checkout session.",
	}, h.mcpGetSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_order_status",
		Description: "Get payment and order progress of a checkout session.",
	}, h.mcpOrderStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ensure_payment_intent",
		Description: "Create or reuse the payment intent of a checkout session and return its client secret.",
	}, h.mcpEnsurePaymentIntent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_daily_stats",
		Description: "Get confirmed payment totals per day and per processor account.",
	}, h.mcpDailyStats)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

func (h *Handler) mcpGetSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *sessionView, error) {
	sess, err := h.mcpLoadSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	view := newSessionView(sess)
	return nil, &view, nil
}

func (h *Handler) mcpOrderStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *orderStatusResponse, error) {
	sess, err := h.mcpLoadSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	status := orderStatus(sess)
	return nil, &status, nil
}

func (h *Handler) mcpEnsurePaymentIntent(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PaymentIntentInput,
) (*mcp.CallToolResult, *payment.EnsureResult, error) {
	if input.SessionID == "" {
		return nil, nil, fmt.Errorf("session_id is required")
	}
	res, err := h.deps.Payments.EnsurePaymentIntent(ctx, payment.EnsureRequest{
		SessionID:     input.SessionID,
		ShippingCents: input.ShippingCents,
	})
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, res, nil
}

func (h *Handler) mcpDailyStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input StatsInput,
) (*mcp.CallToolResult, *statsResponse, error) {
	resp, err := h.collectStats(ctx, input.From, input.To)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, resp, nil
}

func (h *Handler) mcpLoadSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	sess, err := h.deps.Sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, h.mcpError(ctx, model.NewSessionNotFoundError(id))
	}
	if err != nil {
		return nil, h.mcpError(ctx, err)
	}
	return sess, nil
}

// mcpError converts errors to MCP-friendly errors without leaking internals.
func (h *Handler) mcpError(ctx context.Context, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	h.logger.ErrorContext(ctx, "mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
