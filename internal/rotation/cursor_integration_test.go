//go:build integration
// +build integration

// Run with: REDIS_URL=redis://localhost:6379/15 go test -tags=integration ./internal/rotation/... -v
package rotation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCursor(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}

	ctx := context.Background()
	c, err := NewRedisCursor(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	first, err := c.Next(ctx, key)
	require.NoError(t, err)
	second, err := c.Next(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}
