// Package cache contains the optional Redis read-through catalog cache.
//
// The cache only ever serves product listings. Sale re-pricing always
// reads the database, so a stale or unavailable cache can never affect
// a balance or a receipt.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/encontrao/pos-system/internal/model"
)

const catalogTTL = 5 * time.Minute

// CatalogCache caches active product listings per category. A nil
// receiver is valid and behaves as a permanent miss.
type CatalogCache struct {
	client *redis.Client
}

// NewCatalogCache connects to Redis at addr.
func NewCatalogCache(addr string) *CatalogCache {
	return &CatalogCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Close releases the Redis connection.
func (c *CatalogCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func catalogKey(category model.Category) string {
	return "catalog:" + string(category)
}

// GetProducts returns the cached listing for a category, if present.
func (c *CatalogCache) GetProducts(ctx context.Context, category model.Category) ([]model.Product, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, catalogKey(category)).Bytes()
	if err != nil {
		return nil, false
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false
	}
	return products, true
}

// SetProducts stores a category listing. Failures are ignored: the
// database remains the source of truth.
func (c *CatalogCache) SetProducts(ctx context.Context, category model.Category, products []model.Product) {
	if c == nil {
		return
	}

	data, err := json.Marshal(products)
	if err != nil {
		return
	}
	c.client.Set(ctx, catalogKey(category), data, catalogTTL)
}

// Invalidate drops the cached listing for a category. Called on every
// catalog mutation.
func (c *CatalogCache) Invalidate(ctx context.Context, category model.Category) {
	if c == nil {
		return
	}
	c.client.Del(ctx, catalogKey(category))
}
