package telemetry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
)

func testCounters(t *testing.T) (*Counters, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCounters(prometheus.NewRegistry(), client), client
}

func TestCountersIncrementBothSides(t *testing.T) {
	counters, client := testCounters(t)
	ctx := context.Background()

	counters.PageCrawled(ctx)
	counters.PageCrawled(ctx)
	counters.URLsAdded(ctx, 5)
	counters.FetchError(ctx, "timeout")
	counters.ParseError(ctx)

	assert.Equal(t, float64(2), testutil.ToFloat64(counters.pagesCrawled))
	assert.Equal(t, float64(5), testutil.ToFloat64(counters.urlsAdded))
	assert.Equal(t, float64(1), testutil.ToFloat64(counters.fetchErrors.WithLabelValues("timeout")))

	pages, err := client.Get(ctx, kv.StatPagesCrawled).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pages)
	urls, err := client.Get(ctx, kv.StatURLsAdded).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(5), urls)
}

func TestURLsAddedZeroIsNoop(t *testing.T) {
	counters, client := testCounters(t)
	ctx := context.Background()

	counters.URLsAdded(ctx, 0)
	assert.Equal(t, int64(0), client.Exists(ctx, kv.StatURLsAdded).Val())
}

func TestCountersNilMirror(t *testing.T) {
	counters := NewCounters(prometheus.NewRegistry(), nil)
	counters.PageCrawled(context.Background())
	assert.Equal(t, float64(1), testutil.ToFloat64(counters.pagesCrawled))
}

func TestReadStatsAggregatesAcrossPods(t *testing.T) {
	_, clientA := testCounters(t)
	_, clientB := testCounters(t)
	ctx := context.Background()

	require.NoError(t, clientA.Set(ctx, kv.StatPagesCrawled, 10, 0).Err())
	require.NoError(t, clientB.Set(ctx, kv.StatPagesCrawled, 32, 0).Err())
	require.NoError(t, clientB.Set(ctx, kv.StatFetchErrors, 4, 0).Err())

	stats := ReadStats(ctx, map[int]StatsReader{0: clientA, 1: clientB})
	assert.Equal(t, int64(42), stats.PagesCrawled)
	assert.Equal(t, int64(4), stats.FetchErrors)
	assert.Zero(t, stats.ParseErrors)
}

func TestResetStats(t *testing.T) {
	counters, client := testCounters(t)
	ctx := context.Background()

	counters.PageCrawled(ctx)
	require.NoError(t, ResetStats(ctx, client))
	assert.Equal(t, int64(0), client.Exists(ctx, kv.StatPagesCrawled).Val())
}
