// Package store persists the settings document, checkout sessions and daily statistics.
//
// Every mutation that depends on the current document state goes through an
// Update* or Record* method, which the backends execute as one atomic
// read-modify-write (a Firestore transaction, or a mutex in memory).
package store

import (
	"context"
	"errors"
	"time"

	"checkout-relay/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Collection names shared by the document-store backends.
const (
	SettingsCollection = "config"
	SessionsCollection = "checkoutSessions"
	StatsCollection    = "dailyStats"
)

// SettingsStore holds the singleton settings document.
type SettingsStore interface {
	// GetSettings returns the settings document, or ErrNotFound if none was written yet.
	GetSettings(ctx context.Context) (*model.Settings, error)

	// UpdateSettings applies fn to the current settings atomically. A missing
	// document is passed to fn as an empty Settings with normalized slots.
	UpdateSettings(ctx context.Context, fn func(*model.Settings) error) (*model.Settings, error)
}

// SessionStore holds checkout sessions keyed by session id.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.CheckoutSession, error)

	// PutSession writes the whole session, replacing any previous version.
	PutSession(ctx context.Context, s *model.CheckoutSession) error

	// UpdateSession applies fn to the stored session atomically. If fn returns
	// an error nothing is written and the error is returned unchanged.
	UpdateSession(ctx context.Context, id string, fn func(*model.CheckoutSession) error) (*model.CheckoutSession, error)
}

// StatsStore holds per-day payment aggregates.
type StatsStore interface {
	// RecordPayment adds one confirmed payment to the day's document, creating it if absent.
	RecordPayment(ctx context.Context, day, account string, cents int64) error
	GetDailyStats(ctx context.Context, day string) (*model.DailyStats, error)

	// ListDailyStats returns the documents for days in [from, to], oldest first.
	ListDailyStats(ctx context.Context, from, to string) ([]model.DailyStats, error)
}

// Store is the full document store used by the relay.
type Store interface {
	SettingsStore
	SessionStore
	StatsStore
	Close() error
}

// Seed writes initial settings when none exist yet. Existing settings are left untouched
// so values edited through /config survive restarts.
func Seed(ctx context.Context, s SettingsStore, seed *model.Settings) (bool, error) {
	if seed == nil {
		return false, nil
	}
	_, err := s.GetSettings(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	_, err = s.UpdateSettings(ctx, func(cur *model.Settings) error {
		*cur = *seed.Clone()
		cur.NormalizeAccounts()
		cur.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err == nil, err
}

// LoadSettings returns the current settings, or normalized empty settings when
// none were written yet.
func LoadSettings(ctx context.Context, s SettingsStore) (*model.Settings, error) {
	cur, err := s.GetSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		cur = &model.Settings{}
		cur.NormalizeAccounts()
		return cur, nil
	}
	if err != nil {
		return nil, err
	}
	return cur, nil
}
