// Package redisx holds the Redis client setup and the key/TTL conventions
// for the order-status cache. The cache is a read fast path only; Postgres
// stays the source of truth and cache errors are never surfaced.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyOrderStatus caches the latest order status keyed by order id.
	KeyOrderStatus = "order:%s:status"

	TTLStatusCache = 15 * time.Minute
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// StatusCache is a thin wrapper so handlers do not deal with keys and TTLs.
// A nil *StatusCache is a valid no-op cache.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	if rdb == nil {
		return nil
	}
	return &StatusCache{rdb: rdb}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *StatusCache) Set(ctx context.Context, orderID, status string) {
	if c == nil {
		return
	}
	_ = c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), status, TTLStatusCache).Err()
}
