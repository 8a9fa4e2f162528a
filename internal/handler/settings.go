package handler

import (
	"log/slog"
	"net/http"

	"checkout-relay/internal/model"
)

// handleGetConfig returns the settings with secrets redacted.
// GET /config
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.loadSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings.Redacted())
}

// handleUpdateConfig merges an update into the settings. Secret fields left
// empty keep their stored values.
// POST /config
func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var upd model.SettingsUpdate
	if err := h.decodeJSON(w, r, &upd); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.deps.Settings.UpdateSettings(ctx, func(s *model.Settings) error {
		if err := upd.Apply(s); err != nil {
			return err
		}
		s.UpdatedAt = h.now().UTC()
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "settings updated",
		slog.Int("account_slots", len(upd.Accounts)),
		slog.Int("eligible_accounts", countEligible(updated)),
	)
	h.writeJSON(w, http.StatusOK, updated.Redacted())
}

func countEligible(s *model.Settings) int {
	n := 0
	for _, a := range s.Accounts {
		if a.Eligible() {
			n++
		}
	}
	return n
}
