package parsequeue

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

type countingSleeper struct {
	count int
}

func (s *countingSleeper) Sleep(_ context.Context, _ time.Duration) { s.count++ }

func testQueue(t *testing.T, soft, hard int64) (*Queue, *redis.Client, *countingSleeper) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sleeper := &countingSleeper{}
	return NewQueueWithSleeper(client, soft, hard, sleeper), client, sleeper
}

func TestFetchBlobRoundTrip(t *testing.T) {
	blob := FetchBlob{
		URL:              "https://example.com/page",
		Domain:           "example.com",
		Depth:            3,
		ContentBytes:     []byte{0x00, 0xFF, 0x80, '<', 'h', 't', 'm', 'l', '>'},
		ContentType:      "text/html; charset=utf-8",
		CrawledTimestamp: 1_700_000_000,
		StatusCode:       200,
		IsRedirect:       true,
		InitialURL:       "http://example.com/page",
	}
	data, err := EncodeFetch(blob)
	require.Nil(t, err)

	decoded, err := DecodeFetch(data)
	require.Nil(t, err)
	assert.Equal(t, blob, decoded)
	// bytes stay bytes even when they contain invalid UTF-8
	assert.Equal(t, blob.ContentBytes, decoded.ContentBytes)
}

func TestDecodeFetchGarbage(t *testing.T) {
	_, err := DecodeFetch([]byte{0xc1, 0x01, 0x02})
	assert.NotNil(t, err)
}

func TestIngressBlobRoundTrip(t *testing.T) {
	data, err := EncodeIngress(IngressBlob{URL: "https://b.test/", Depth: 1})
	require.Nil(t, err)
	decoded, err := DecodeIngress(data)
	require.Nil(t, err)
	assert.Equal(t, "https://b.test/", decoded.URL)
	assert.Equal(t, 1, decoded.Depth)
}

func TestPushPop(t *testing.T) {
	q, _, _ := testQueue(t, 100, 200)
	ctx := context.Background()

	blob, err := EncodeFetch(FetchBlob{URL: "https://a.test/", StatusCode: 200})
	require.Nil(t, err)
	require.Nil(t, q.Push(ctx, blob))

	popped, err := q.Pop(ctx)
	require.Nil(t, err)
	decoded, err := DecodeFetch(popped)
	require.Nil(t, err)
	assert.Equal(t, "https://a.test/", decoded.URL)
}

func TestPushSleepsAboveSoftLimit(t *testing.T) {
	q, client, sleeper := testQueue(t, 2, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, client.RPush(ctx, kv.FetchQueueKey, "x").Err())
	}
	require.Nil(t, q.Push(ctx, []byte("y")))
	assert.Equal(t, 1, sleeper.count)
}

func TestPushNoSleepBelowSoftLimit(t *testing.T) {
	q, _, sleeper := testQueue(t, 100, 200)
	require.Nil(t, q.Push(context.Background(), []byte("y")))
	assert.Zero(t, sleeper.count)
}

func TestHardLimitGate(t *testing.T) {
	q, client, _ := testQueue(t, 2, 4)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, client.RPush(ctx, kv.FetchQueueKey, "x").Err())
	}
	assert.True(t, q.AboveHard(ctx))
	assert.False(t, q.BelowSoft(ctx))

	require.NoError(t, client.LTrim(ctx, kv.FetchQueueKey, 0, 0).Err())
	assert.False(t, q.AboveHard(ctx))
	assert.True(t, q.BelowSoft(ctx))
}

func TestPopEmptyTimesOut(t *testing.T) {
	// ctx cancellation cuts the BLPOP short so the test stays fast
	q, _, _ := testQueue(t, 10, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	blob, err := q.Pop(ctx)
	if err != nil {
		// a cancelled BLPOP may surface as a transient error; either way no
		// blob is produced
		assert.Nil(t, blob)
		return
	}
	assert.Nil(t, blob)
}

func TestIngressPushAndDrain(t *testing.T) {
	_, client, _ := testQueue(t, 10, 20)
	ctx := context.Background()

	first, err := EncodeIngress(IngressBlob{URL: "https://b.test/", Depth: 1})
	require.Nil(t, err)
	second, err := EncodeIngress(IngressBlob{URL: "https://c.test/", Depth: 2})
	require.Nil(t, err)
	require.Nil(t, PushIngress(ctx, client, [][]byte{first, second}))

	blobs, err := PopIngressBatch(ctx, client, 10)
	require.Nil(t, err)
	require.Len(t, blobs, 2)

	decoded, err := DecodeIngress(blobs[0])
	require.Nil(t, err)
	assert.Equal(t, "https://b.test/", decoded.URL)

	// drained
	blobs, err = PopIngressBatch(ctx, client, 10)
	require.Nil(t, err)
	assert.Empty(t, blobs)
}

func TestPushIngressEmptyBatch(t *testing.T) {
	_, client, _ := testQueue(t, 10, 20)
	assert.Nil(t, PushIngress(context.Background(), client, nil))
}
