package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huyngo-dev/pos-terminal/internal/obs"
)

// Cache keys for the read models the POS depends on. The order-lines key is
// per order; the rest are store-wide.
const (
	KeyProducts   = "pos:products"
	KeyCategories = "pos:categories"
	KeySettings   = "pos:settings"
	KeyOrders     = "pos:orders"
	KeyTables     = "pos:tables"
)

// KeyOrderLines returns the cache key holding the persisted lines of one order.
func KeyOrderLines(orderID string) string {
	return "pos:order:" + orderID + ":lines"
}

// Cache stores JSON read models in Redis with a fixed TTL. A nil cache or nil
// client degrades to a pass-through: reads miss, writes and invalidations are
// no-ops.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a read-model cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON loads a cached payload into dst, reporting whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			obs.ObserveCache(key, false)
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	obs.ObserveCache(key, true)
	return true, nil
}

// SetJSON serialises v and stores it under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops the given keys so the next read refetches from the backend.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
