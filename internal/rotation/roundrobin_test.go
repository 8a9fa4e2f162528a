package rotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-relay/internal/model"
)

func TestRoundRobinCycles(t *testing.T) {
	ctx := context.Background()
	rr := NewRoundRobin(NewMemoryCursor(), "")
	accounts := []model.ProcessorAccount{
		{Label: "a", SecretKey: "sk_a"},
		{Label: "empty"},
		{Label: "b", SecretKey: "sk_b"},
		{Label: "c", SecretKey: "sk_c", Active: false},
	}

	var got []string
	for i := 0; i < 6; i++ {
		a, err := rr.Next(ctx, accounts)
		require.NoError(t, err)
		got = append(got, a.Label)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestRoundRobinNoSecrets(t *testing.T) {
	rr := NewRoundRobin(NewMemoryCursor(), "k")
	_, err := rr.Next(context.Background(), []model.ProcessorAccount{{Label: "x", Active: true}})
	assert.ErrorIs(t, err, model.ErrNoActiveAccount)
}

func TestMemoryCursorKeysIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCursor()

	n, _ := c.Next(ctx, "a")
	assert.Equal(t, int64(1), n)
	n, _ = c.Next(ctx, "a")
	assert.Equal(t, int64(2), n)
	n, _ = c.Next(ctx, "b")
	assert.Equal(t, int64(1), n)
}
