// Package rotation chooses which processor account handles the next payment.
//
// Two strategies exist and serve different call sites:
//
//   - Rotator: least-recently-used with a cooldown window, persisted in the
//     settings document. Used for payment-intent creation.
//   - RoundRobin: plain cycling over accounts with a secret key, cursor held
//     by a CursorStore. Used for hosted checkout-session creation.
//
// They are intentionally not unified.
package rotation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"checkout-relay/internal/model"
	"checkout-relay/internal/store"
)

// Cooldown is the minimum idle time before an account is preferred again.
const Cooldown = 6 * time.Hour

// SelectAccount picks the account for the next payment intent.
//
// Candidates are eligible accounts sorted by LastUsedAt ascending (never-used
// first). The stalest candidate wins when it has cooled down or is the only
// one; otherwise the first candidate past the cooldown wins, and if none is,
// the stalest is used anyway so a selection is always made.
func SelectAccount(accounts []model.ProcessorAccount, now time.Time, cooldown time.Duration) (model.ProcessorAccount, error) {
	i, err := selectIndex(accounts, now, cooldown)
	if err != nil {
		return model.ProcessorAccount{}, err
	}
	return accounts[i], nil
}

// selectIndex is SelectAccount returning the slot position.
func selectIndex(accounts []model.ProcessorAccount, now time.Time, cooldown time.Duration) (int, error) {
	candidates := make([]int, 0, len(accounts))
	for i, a := range accounts {
		if a.Eligible() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1, model.NewNoActiveAccountError()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return accounts[candidates[i]].LastUsedAt < accounts[candidates[j]].LastUsedAt
	})

	nowMs := now.UnixMilli()
	cooldownMs := cooldown.Milliseconds()
	oldest := candidates[0]

	if len(candidates) == 1 || nowMs-accounts[oldest].LastUsedAt >= cooldownMs {
		return oldest, nil
	}
	for _, c := range candidates {
		if nowMs-accounts[c].LastUsedAt > cooldownMs {
			return c, nil
		}
	}
	return oldest, nil
}

// Rotator applies SelectAccount to the stored settings and records the
// selection time on the chosen account.
type Rotator struct {
	settings store.SettingsStore
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// WithCooldown overrides the default cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(r *Rotator) { r.cooldown = d }
}

// NewRotator creates a Rotator over the given settings store.
func NewRotator(settings store.SettingsStore, logger *slog.Logger, opts ...Option) *Rotator {
	r := &Rotator{
		settings: settings,
		cooldown: Cooldown,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select chooses an account and persists its LastUsedAt.
// Selection and bookkeeping happen inside one settings update, so two
// concurrent callers cannot both read the same stale LastUsedAt.
func (r *Rotator) Select(ctx context.Context) (model.ProcessorAccount, error) {
	var selected model.ProcessorAccount
	now := r.now()

	_, err := r.settings.UpdateSettings(ctx, func(s *model.Settings) error {
		i, err := selectIndex(s.Accounts, now, r.cooldown)
		if err != nil {
			return err
		}
		s.Accounts[i].LastUsedAt = now.UnixMilli()
		selected = s.Accounts[i]
		return nil
	})
	if err != nil {
		return model.ProcessorAccount{}, err
	}

	r.logger.DebugContext(ctx, "processor account selected",
		slog.String("account", selected.Label),
		slog.String("strategy", "lru"),
	)
	return selected, nil
}
