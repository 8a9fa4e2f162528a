package rotation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-relay/internal/model"
	"checkout-relay/internal/store"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func acct(label string, lastUsedAgo time.Duration) model.ProcessorAccount {
	a := model.ProcessorAccount{
		Label:          label,
		SecretKey:      "sk_" + label,
		PublishableKey: "pk_" + label,
		Active:         true,
	}
	if lastUsedAgo >= 0 {
		a.LastUsedAt = testNow.Add(-lastUsedAgo).UnixMilli()
	}
	return a
}

func TestSelectAccount(t *testing.T) {
	tests := []struct {
		name     string
		accounts []model.ProcessorAccount
		want     string
	}{
		{
			name:     "never used sorts first",
			accounts: []model.ProcessorAccount{acct("a", time.Hour), acct("b", -1)},
			want:     "b",
		},
		{
			name:     "oldest past cooldown wins",
			accounts: []model.ProcessorAccount{acct("a", 7*time.Hour), acct("b", 8*time.Hour)},
			want:     "b",
		},
		{
			name:     "all inside cooldown falls back to least recently used",
			accounts: []model.ProcessorAccount{acct("a", time.Hour), acct("b", 2*time.Hour), acct("c", 30*time.Minute)},
			want:     "b",
		},
		{
			name: "inactive skipped",
			accounts: []model.ProcessorAccount{
				func() model.ProcessorAccount { a := acct("a", -1); a.Active = false; return a }(),
				acct("b", time.Minute),
			},
			want: "b",
		},
		{
			name: "missing publishable key skipped",
			accounts: []model.ProcessorAccount{
				func() model.ProcessorAccount { a := acct("a", -1); a.PublishableKey = ""; return a }(),
				acct("b", time.Minute),
			},
			want: "b",
		},
		{
			name:     "exactly at cooldown qualifies",
			accounts: []model.ProcessorAccount{acct("a", Cooldown), acct("b", time.Minute)},
			want:     "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectAccount(tt.accounts, testNow, Cooldown)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Label)
		})
	}
}

func TestSelectAccountNoneEligible(t *testing.T) {
	accounts := []model.ProcessorAccount{
		{Label: "empty"},
		{Label: "inactive", SecretKey: "sk", PublishableKey: "pk"},
	}
	_, err := SelectAccount(accounts, testNow, Cooldown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNoActiveAccount))
}

func TestSelectAccountSingleEligibleAlwaysChosen(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		ago := time.Duration(r.Int63n(int64(12 * time.Hour)))
		accounts := []model.ProcessorAccount{
			{Label: "off", SecretKey: "sk", PublishableKey: "pk", Active: false},
			acct("only", ago),
			{Label: "blank", Active: true},
		}
		got, err := SelectAccount(accounts, testNow, Cooldown)
		require.NoError(t, err)
		require.Equal(t, "only", got.Label, "lastUsed %s ago", ago)
	}
}

func TestSelectAccountRespectsCooldownWhenPossible(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		n := 2 + r.Intn(3)
		accounts := make([]model.ProcessorAccount, n)
		for j := range accounts {
			accounts[j] = acct(string(rune('a'+j)), time.Duration(r.Int63n(int64(12*time.Hour))))
		}

		got, err := SelectAccount(accounts, testNow, Cooldown)
		require.NoError(t, err)

		anyCooled := false
		minUsed := accounts[0].LastUsedAt
		for _, a := range accounts {
			if testNow.UnixMilli()-a.LastUsedAt >= Cooldown.Milliseconds() {
				anyCooled = true
			}
			if a.LastUsedAt < minUsed {
				minUsed = a.LastUsedAt
			}
		}

		if anyCooled {
			assert.GreaterOrEqual(t, testNow.UnixMilli()-got.LastUsedAt, Cooldown.Milliseconds(),
				"selected an account inside cooldown while another was available")
		} else {
			assert.Equal(t, minUsed, got.LastUsedAt, "should fall back to least recently used")
		}
	}
}

func TestRotatorPersistsLastUsedAt(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.UpdateSettings(ctx, func(s *model.Settings) error {
		s.Accounts = []model.ProcessorAccount{acct("a", time.Hour), acct("b", 2*time.Hour)}
		return nil
	})
	require.NoError(t, err)

	clock := testNow
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRotator(mem, logger, WithClock(func() time.Time { return clock }))

	first, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", first.Label)

	s, err := mem.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow.UnixMilli(), s.Account("b").LastUsedAt)

	clock = testNow.Add(time.Minute)
	second, err := r.Select(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", second.Label, "b was just used, a is now the stalest")
}

func TestRotatorStampsSelectedSlot(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	// Two slots sharing a label, as stored before labels were validated.
	_, err := mem.UpdateSettings(ctx, func(s *model.Settings) error {
		first, second := acct("main", -1), acct("main", -1)
		first.SecretKey, second.SecretKey = "sk_1", "sk_2"
		s.Accounts = []model.ProcessorAccount{first, second}
		return nil
	})
	require.NoError(t, err)

	clock := testNow
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRotator(mem, logger, WithClock(func() time.Time { return clock }))

	var keys []string
	for i := 0; i < 4; i++ {
		clock = testNow.Add(time.Duration(i) * time.Minute)
		got, err := r.Select(ctx)
		require.NoError(t, err)
		keys = append(keys, got.SecretKey)
	}
	assert.Equal(t, []string{"sk_1", "sk_2", "sk_1", "sk_2"}, keys)

	s, err := mem.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(2*time.Minute).UnixMilli(), s.Accounts[0].LastUsedAt)
	assert.Equal(t, testNow.Add(3*time.Minute).UnixMilli(), s.Accounts[1].LastUsedAt)
}

func TestRotatorNoAccounts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRotator(store.NewMemory(), logger)

	_, err := r.Select(context.Background())
	assert.ErrorIs(t, err, model.ErrNoActiveAccount)
}
