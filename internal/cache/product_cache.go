package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// DefaultTTL is how long listing and detail entries live.
const DefaultTTL = 5 * time.Minute

// scanDeleteScript walks the keyspace with SCAN COUNT=100 and deletes
// matching keys server-side. KEYS is blocking at scale; SCAN yields
// cooperatively.
var scanDeleteScript = redis.NewScript(`
local cursor = "0"
local deleted = 0
repeat
  local result = redis.call("SCAN", cursor, "MATCH", ARGV[1], "COUNT", 100)
  cursor = result[1]
  for _, key in ipairs(result[2]) do
    redis.call("DEL", key)
    deleted = deleted + 1
  end
until cursor == "0"
return deleted
`)

// ProductCache is the read-through cache for product listings and details.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewProductCache creates a product cache with the default TTL.
func NewProductCache(client *redis.Client, logger zerolog.Logger) *ProductCache {
	return &ProductCache{
		client: client,
		ttl:    DefaultTTL,
		logger: logger.With().Str("component", "product_cache").Logger(),
	}
}

// ListKey builds the listing cache key. brandID nil maps to "all".
func ListKey(brandID *int64, sort models.ProductSort, page, size int) string {
	brand := "all"
	if brandID != nil {
		brand = strconv.FormatInt(*brandID, 10)
	}
	return fmt.Sprintf("product:list:brand:%s:sort:%s:page:%d:size:%d", brand, sort, page, size)
}

// DetailKey builds the detail cache key.
func DetailKey(productID int64) string {
	return fmt.Sprintf("product:detail:%d", productID)
}

// Get returns the cached value and whether the key was present.
func (c *ProductCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

// Set stores a value with the cache TTL.
func (c *ProductCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateProduct drops the product's detail entry and every listing page.
func (c *ProductCache) InvalidateProduct(ctx context.Context, productID int64) error {
	if err := c.client.Del(ctx, DetailKey(productID)).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return c.invalidatePattern(ctx, "product:list:*")
}

// InvalidateBrand drops listing pages scoped to one brand.
func (c *ProductCache) InvalidateBrand(ctx context.Context, brandID int64) error {
	return c.invalidatePattern(ctx, fmt.Sprintf("product:list:brand:%d:*", brandID))
}

// InvalidateListings drops every listing page.
func (c *ProductCache) InvalidateListings(ctx context.Context) error {
	return c.invalidatePattern(ctx, "product:list:*")
}

func (c *ProductCache) invalidatePattern(ctx context.Context, pattern string) error {
	deleted, err := scanDeleteScript.Run(ctx, c.client, []string{}, pattern).Int64()
	if err != nil {
		return fmt.Errorf("cache invalidate %q: %w", pattern, err)
	}
	if deleted > 0 {
		c.logger.Debug().Str("pattern", pattern).Int64("deleted", deleted).Msg("cache entries evicted")
	}
	return nil
}
