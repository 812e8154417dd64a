package seenbloom

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBloom implements BloomCmdable over a plain set, mimicking RedisBloom
// semantics: BF.MADD returns, per element, whether it was newly added.
type fakeBloom struct {
	reserved bool
	capacity int64
	seen     map[string]struct{}
	madds    int
}

func newFakeBloom() *fakeBloom {
	return &fakeBloom{seen: make(map[string]struct{})}
}

// fakeRedisError mimics a server reply error.
type fakeRedisError string

func (e fakeRedisError) Error() string { return string(e) }
func (e fakeRedisError) RedisError()   {}

func (f *fakeBloom) BFReserve(ctx context.Context, key string, errorRate float64, capacity int64) *redis.StatusCmd {
	if f.reserved {
		return redis.NewStatusResult("", fakeRedisError("ERR item exists"))
	}
	f.reserved = true
	f.capacity = capacity
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeBloom) BFMAdd(ctx context.Context, key string, elements ...interface{}) *redis.BoolSliceCmd {
	f.madds++
	results := make([]bool, len(elements))
	for i, el := range elements {
		s := el.(string)
		if _, dup := f.seen[s]; !dup {
			f.seen[s] = struct{}{}
			results[i] = true
		}
	}
	return redis.NewBoolSliceResult(results, nil)
}

func (f *fakeBloom) BFExists(ctx context.Context, key string, element interface{}) *redis.BoolCmd {
	_, ok := f.seen[element.(string)]
	return redis.NewBoolResult(ok, nil)
}

func TestAddIfNewReportsFreshness(t *testing.T) {
	fake := newFakeBloom()
	sb := New(fake)
	ctx := context.Background()

	fresh, err := sb.AddIfNew(ctx, []string{"https://a.test/", "https://b.test/"})
	require.Nil(t, err)
	assert.Equal(t, []bool{true, true}, fresh)

	fresh, err = sb.AddIfNew(ctx, []string{"https://a.test/", "https://c.test/"})
	require.Nil(t, err)
	assert.Equal(t, []bool{false, true}, fresh)
}

func TestAddIfNewEmptyBatch(t *testing.T) {
	sb := New(newFakeBloom())
	fresh, err := sb.AddIfNew(context.Background(), nil)
	require.Nil(t, err)
	assert.Nil(t, fresh)
}

func TestAddIfNewLocalPrefilterSkipsRoundTrip(t *testing.T) {
	fake := newFakeBloom()
	sb := New(fake)
	ctx := context.Background()

	_, err := sb.AddIfNew(ctx, []string{"https://a.test/"})
	require.Nil(t, err)
	require.Equal(t, 1, fake.madds)

	// the same URL again is absorbed locally: no new BF.MADD
	fresh, err := sb.AddIfNew(ctx, []string{"https://a.test/"})
	require.Nil(t, err)
	assert.Equal(t, []bool{false}, fresh)
	assert.Equal(t, 1, fake.madds)
}

func TestExists(t *testing.T) {
	fake := newFakeBloom()
	sb := New(fake)
	ctx := context.Background()

	exists, err := sb.Exists(ctx, "https://a.test/")
	require.Nil(t, err)
	assert.False(t, exists)

	_, err = sb.AddIfNew(ctx, []string{"https://a.test/"})
	require.Nil(t, err)

	exists, err = sb.Exists(ctx, "https://a.test/")
	require.Nil(t, err)
	assert.True(t, exists)
}

func TestExistsVisibleAcrossWrappers(t *testing.T) {
	// two wrappers sharing one KV filter: a URL added by one is visible to
	// the other even though the other's local prefilter is cold
	fake := newFakeBloom()
	first := New(fake)
	second := New(fake)
	ctx := context.Background()

	_, err := first.AddIfNew(ctx, []string{"https://a.test/"})
	require.Nil(t, err)

	exists, err := second.Exists(ctx, "https://a.test/")
	require.Nil(t, err)
	assert.True(t, exists)

	fresh, err := second.AddIfNew(ctx, []string{"https://a.test/"})
	require.Nil(t, err)
	assert.Equal(t, []bool{false}, fresh)
}

func TestInitIdempotent(t *testing.T) {
	fake := newFakeBloom()
	sb := New(fake)
	ctx := context.Background()

	require.Nil(t, sb.Init(ctx, 1_000_000, 0.001))
	assert.Equal(t, int64(1_000_000), fake.capacity)

	// a second reserve races against an existing filter and is a no-op
	require.Nil(t, sb.Init(ctx, 1_000_000, 0.001))
}
