package rotation

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CursorStore hands out monotonically increasing positions per key.
// Next returns 1 on first use.
type CursorStore interface {
	Next(ctx context.Context, key string) (int64, error)
}

// MemoryCursor is a process-local CursorStore; it resets on restart and is
// not shared between instances.
type MemoryCursor struct {
	mu      sync.Mutex
	cursors map[string]int64
}

// NewMemoryCursor creates an empty MemoryCursor.
func NewMemoryCursor() *MemoryCursor {
	return &MemoryCursor{cursors: make(map[string]int64)}
}

func (m *MemoryCursor) Next(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key]++
	return m.cursors[key], nil
}

// RedisCursor shares the cursor across instances with INCR.
type RedisCursor struct {
	client *redis.Client
	prefix string
}

// NewRedisCursor parses a redis:// URL and returns a cursor store on it.
func NewRedisCursor(ctx context.Context, redisURL string) (*RedisCursor, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisCursor{client: client, prefix: "checkout-relay:rr:"}, nil
}

func (r *RedisCursor) Next(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Close closes the redis connection pool.
func (r *RedisCursor) Close() error {
	return r.client.Close()
}

var (
	_ CursorStore = (*MemoryCursor)(nil)
	_ CursorStore = (*RedisCursor)(nil)
)
