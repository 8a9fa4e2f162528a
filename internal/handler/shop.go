package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"checkout-relay/internal/model"
)

// handleDiscount resolves a discount code against the shop.
// GET /discount?code=
func (h *Handler) handleDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		h.writeError(w, r, model.NewValidationError("code", "required"))
		return
	}

	settings, err := h.loadSettings(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !settings.Shop.Configured() {
		h.writeError(w, r, model.NewNotFoundError("discount"))
		return
	}

	d, err := h.deps.Discounts.LookupDiscount(ctx, settings.Shop, code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// maxStatsRange bounds a /stats query.
const maxStatsRange = 366 * 24 * time.Hour

type statsResponse struct {
	From              string             `json:"from"`
	To                string             `json:"to"`
	TotalCents        int64              `json:"totalCents"`
	TotalTransactions int64              `json:"totalTransactions"`
	Days              []model.DailyStats `json:"days"`
}

// handleStats returns daily payment aggregates for a date range (default today).
// GET /stats?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.collectStats(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// collectStats sums the daily documents in [from, to]. Missing bounds default to today.
func (h *Handler) collectStats(ctx context.Context, from, to string) (*statsResponse, error) {
	if to == "" {
		to = model.DayKey(h.now())
	}
	if from == "" {
		from = to
	}

	fromT, err := time.Parse(model.DayLayout, from)
	if err != nil {
		return nil, model.NewValidationError("from", "expected YYYY-MM-DD")
	}
	toT, err := time.Parse(model.DayLayout, to)
	if err != nil {
		return nil, model.NewValidationError("to", "expected YYYY-MM-DD")
	}
	if toT.Before(fromT) {
		return nil, model.NewValidationError("to", "before from")
	}
	if toT.Sub(fromT) > maxStatsRange {
		return nil, model.NewValidationError("from", "range longer than a year")
	}

	days, err := h.deps.Stats.ListDailyStats(ctx, from, to)
	if err != nil {
		return nil, err
	}

	resp := &statsResponse{From: from, To: to, Days: days}
	if resp.Days == nil {
		resp.Days = []model.DailyStats{}
	}
	for _, d := range days {
		resp.TotalCents += d.TotalCents
		resp.TotalTransactions += d.TotalTransactions
	}
	return resp, nil
}
