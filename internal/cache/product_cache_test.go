package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopershop/commerce-core/internal/models"
)

func setupCache(t *testing.T) (*ProductCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewProductCache(client, zerolog.Nop()), server
}

func TestKeys(t *testing.T) {
	brandID := int64(3)
	assert.Equal(t, "product:list:brand:3:sort:price_asc:page:0:size:20",
		ListKey(&brandID, models.SortPriceAsc, 0, 20))
	assert.Equal(t, "product:list:brand:all:sort:latest:page:2:size:50",
		ListKey(nil, models.SortLatest, 2, 50))
	assert.Equal(t, "product:detail:42", DetailKey(42))
}

func TestCache_SetGetWithTTL(t *testing.T) {
	cache, server := setupCache(t)
	ctx := context.Background()

	_, hit, err := cache.Get(ctx, DetailKey(42))
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, DetailKey(42), `{"id":42}`))

	value, hit, err := cache.Get(ctx, DetailKey(42))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"id":42}`, value)
	assert.Equal(t, DefaultTTL, server.TTL(DetailKey(42)))

	// Entries vanish after the TTL.
	server.FastForward(DefaultTTL + time.Second)
	_, hit, err = cache.Get(ctx, DetailKey(42))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_InvalidateProduct(t *testing.T) {
	cache, server := setupCache(t)
	ctx := context.Background()

	brandID := int64(3)
	require.NoError(t, cache.Set(ctx, DetailKey(42), "detail"))
	require.NoError(t, cache.Set(ctx, ListKey(nil, models.SortLatest, 0, 20), "list-all"))
	require.NoError(t, cache.Set(ctx, ListKey(&brandID, models.SortPriceAsc, 0, 20), "list-brand"))
	require.NoError(t, cache.Set(ctx, "ranking:all:20240515", "unrelated"))

	require.NoError(t, cache.InvalidateProduct(ctx, 42))

	assert.False(t, server.Exists(DetailKey(42)))
	assert.False(t, server.Exists(ListKey(nil, models.SortLatest, 0, 20)))
	assert.False(t, server.Exists(ListKey(&brandID, models.SortPriceAsc, 0, 20)))
	assert.True(t, server.Exists("ranking:all:20240515"), "only product keys are evicted")
}

func TestCache_InvalidateBrandScopesEviction(t *testing.T) {
	cache, server := setupCache(t)
	ctx := context.Background()

	brand3 := int64(3)
	brand4 := int64(4)
	require.NoError(t, cache.Set(ctx, ListKey(&brand3, models.SortLatest, 0, 20), "brand-3"))
	require.NoError(t, cache.Set(ctx, ListKey(&brand4, models.SortLatest, 0, 20), "brand-4"))

	require.NoError(t, cache.InvalidateBrand(ctx, 3))

	assert.False(t, server.Exists(ListKey(&brand3, models.SortLatest, 0, 20)))
	assert.True(t, server.Exists(ListKey(&brand4, models.SortLatest, 0, 20)))
}
