package rotation

import (
	"context"
	"fmt"

	"checkout-relay/internal/model"
)

// DefaultCursorKey names the round-robin cursor for hosted checkout sessions.
const DefaultCursorKey = "hosted-checkout"

// RoundRobin cycles through accounts that have a secret key.
// Unlike Rotator it ignores LastUsedAt and the Active flag.
type RoundRobin struct {
	cursor CursorStore
	key    string
}

// NewRoundRobin creates a RoundRobin using the given cursor store.
func NewRoundRobin(cursor CursorStore, key string) *RoundRobin {
	if key == "" {
		key = DefaultCursorKey
	}
	return &RoundRobin{cursor: cursor, key: key}
}

// Next returns the next account with a non-empty secret key.
func (rr *RoundRobin) Next(ctx context.Context, accounts []model.ProcessorAccount) (model.ProcessorAccount, error) {
	withSecret := make([]model.ProcessorAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.SecretKey != "" {
			withSecret = append(withSecret, a)
		}
	}
	if len(withSecret) == 0 {
		return model.ProcessorAccount{}, model.NewNoActiveAccountError()
	}

	n, err := rr.cursor.Next(ctx, rr.key)
	if err != nil {
		return model.ProcessorAccount{}, fmt.Errorf("advancing round-robin cursor: %w", err)
	}
	idx := int((n - 1) % int64(len(withSecret)))
	if idx < 0 {
		idx += len(withSecret)
	}
	return withSecret[idx], nil
}
