package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPopReadyDomainEmptyQueue(t *testing.T) {
	_, client := testClient(t)

	snap, err := PopReadyDomain(context.Background(), client)
	require.Nil(t, err)
	assert.Nil(t, snap)
}

func TestPopReadyDomainReturnsSnapshot(t *testing.T) {
	_, client := testClient(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, DomainsQueueKey, "example.com").Err())
	require.NoError(t, client.HSet(ctx, DomainKey("example.com"),
		FieldNextFetchTime, 1234,
		FieldIsExcluded, 0,
		FieldFrontierOffset, 10,
		FieldFrontierSize, 40,
		FieldFilePath, "1a/example.com.frontier",
	).Err())

	snap, err := PopReadyDomain(ctx, client)
	require.Nil(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "example.com", snap.Domain)
	assert.Equal(t, int64(1234), snap.NextFetchTime)
	assert.False(t, snap.IsExcluded)
	assert.Equal(t, int64(10), snap.FrontierOffset)
	assert.Equal(t, int64(40), snap.FrontierSize)
	assert.Equal(t, "1a/example.com.frontier", snap.FilePath)

	// queue is drained
	next, err := PopReadyDomain(ctx, client)
	require.Nil(t, err)
	assert.Nil(t, next)
}

func TestPopReadyDomainWithoutRecord(t *testing.T) {
	_, client := testClient(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, DomainsQueueKey, "ghost.test").Err())

	snap, err := PopReadyDomain(ctx, client)
	require.Nil(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "ghost.test", snap.Domain)
	assert.Zero(t, snap.FrontierSize)
	assert.Empty(t, snap.FilePath)
}

func TestClearZombieLocks(t *testing.T) {
	_, client := testClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetNX(ctx, LockKey("a.test"), 1, 0).Err())
	require.NoError(t, client.SetNX(ctx, LockKey("b.test"), 1, 0).Err())
	require.NoError(t, client.Set(ctx, "domain:a.test", "keep", 0).Err())

	cleared, err := ClearZombieLocks(ctx, client)
	require.Nil(t, err)
	assert.Equal(t, 2, cleared)

	assert.Equal(t, int64(0), client.Exists(ctx, LockKey("a.test")).Val())
	assert.Equal(t, int64(0), client.Exists(ctx, LockKey("b.test")).Val())
	// unrelated keys survive
	assert.Equal(t, int64(1), client.Exists(ctx, "domain:a.test").Val())
}

func TestWithRetryPassesThroughValue(t *testing.T) {
	v, err := WithRetry(context.Background(), func() (int, error) {
		return 7, nil
	})
	require.Nil(t, err)
	assert.Equal(t, 7, v)
}

func TestWithRetryGivesUpOnPersistentFailure(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("connection refused")
	})
	require.NotNil(t, err)
	assert.Equal(t, 3, calls)
}

func TestClassifyServerErrorIsFatal(t *testing.T) {
	classified := Classify(redis.Nil)
	// redis.Nil should be handled by callers, but if classified it is a
	// server reply, not a transport failure
	assert.Equal(t, failure.SeverityFatal, classified.Severity())
}
