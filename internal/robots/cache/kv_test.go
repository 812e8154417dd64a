package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
)

func testKVCache(t *testing.T, now time.Time) (*KVCache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewKVCacheWithClock(client, func() time.Time { return now }), client
}

func TestKVCacheMissOnEmptyRecord(t *testing.T) {
	c, _ := testKVCache(t, time.Unix(1000, 0))
	_, live, err := c.Get(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestKVCachePutGetRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	c, client := testKVCache(t, now)
	ctx := context.Background()

	body := "User-agent: *\nDisallow: /private/\n"
	require.NoError(t, c.Put(ctx, "example.com", body, now.Add(time.Hour)))

	got, live, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, body, got)

	// the body rides inside the domain record
	stored, err := client.HGet(ctx, kv.DomainKey("example.com"), kv.FieldRobotsTxt).Result()
	require.NoError(t, err)
	assert.Equal(t, body, stored)
}

func TestKVCacheExpiredEntryIsMiss(t *testing.T) {
	now := time.Unix(1000, 0)
	c, _ := testKVCache(t, now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "example.com", "body", now.Add(-time.Second)))
	_, live, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestKVCacheEmptyBodyIsCacheable(t *testing.T) {
	now := time.Unix(1000, 0)
	c, _ := testKVCache(t, now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "example.com", "", now.Add(time.Hour)))
	body, live, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Empty(t, body)
}
