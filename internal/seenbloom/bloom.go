package seenbloom

import (
	"context"
	"errors"
	"strings"
	"sync"

	localbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

/*
Seen-bloom: the pod-local probabilistic set of every URL ever added to the
pod's frontier.

The authoritative filter lives in the pod KV (RedisBloom). A false positive
drops at most one new URL silently; false negatives never occur. On top of
the KV filter each process keeps a small in-memory prefilter: a URL the
process has already pushed through BF.MADD will be caught locally and never
costs a round trip again. The prefilter is advisory only; the KV filter
remains the single source of truth across processes.
*/

// BloomCmdable is the slice of the KV client surface this package needs.
// *redis.Client satisfies it; tests use a hand-rolled fake.
type BloomCmdable interface {
	BFReserve(ctx context.Context, key string, errorRate float64, capacity int64) *redis.StatusCmd
	BFMAdd(ctx context.Context, key string, elements ...interface{}) *redis.BoolSliceCmd
	BFExists(ctx context.Context, key string, element interface{}) *redis.BoolCmd
}

type SeenBloom struct {
	client BloomCmdable

	mu    sync.Mutex
	local *localbloom.BloomFilter
}

func New(client BloomCmdable) *SeenBloom {
	// the prefilter is deliberately small; it only needs to absorb this
	// process's own recent traffic
	return &SeenBloom{
		client: client,
		local:  localbloom.NewWithEstimates(10_000_000, 0.001),
	}
}

// Init reserves the KV filter with the configured capacity and error rate.
// A filter that already exists (resume, or another process won the race) is
// left untouched.
func (s *SeenBloom) Init(ctx context.Context, capacity int64, errorRate float64) failure.ClassifiedError {
	err := s.client.BFReserve(ctx, kv.SeenBloomKey, errorRate, capacity).Err()
	if err == nil {
		return nil
	}
	if isAlreadyExists(err) {
		return nil
	}
	return kv.Classify(err)
}

// AddIfNew adds the URLs to the filter and reports, per URL, whether it was
// new. Each URL is added atomically (one bloom add per URL with the
// pre-existence bit returned); the whole batch goes out as one BF.MADD.
func (s *SeenBloom) AddIfNew(ctx context.Context, urls []string) ([]bool, failure.ClassifiedError) {
	if len(urls) == 0 {
		return nil, nil
	}

	fresh := make([]bool, len(urls))
	candidates := make([]interface{}, 0, len(urls))
	candidateIdx := make([]int, 0, len(urls))

	s.mu.Lock()
	for i, url := range urls {
		if s.local.TestString(url) {
			// already pushed by this process; the KV filter has it
			continue
		}
		candidates = append(candidates, url)
		candidateIdx = append(candidateIdx, i)
	}
	s.mu.Unlock()

	if len(candidates) == 0 {
		return fresh, nil
	}

	added, err := s.client.BFMAdd(ctx, kv.SeenBloomKey, candidates...).Result()
	if err != nil {
		return nil, kv.Classify(err)
	}
	if len(added) != len(candidates) {
		return nil, &kv.KVError{Message: "BF.MADD reply length mismatch", Cause: kv.ErrCauseBadReply}
	}

	s.mu.Lock()
	for pos, wasAdded := range added {
		url := candidates[pos].(string)
		s.local.AddString(url)
		fresh[candidateIdx[pos]] = wasAdded
	}
	s.mu.Unlock()

	return fresh, nil
}

// Exists reports whether the filter (possibly falsely) contains url.
func (s *SeenBloom) Exists(ctx context.Context, url string) (bool, failure.ClassifiedError) {
	s.mu.Lock()
	hit := s.local.TestString(url)
	s.mu.Unlock()
	if hit {
		return true, nil
	}
	exists, err := s.client.BFExists(ctx, kv.SeenBloomKey, url).Result()
	if err != nil {
		return false, kv.Classify(err)
	}
	return exists, nil
}

// RedisBloom answers BF.RESERVE on an existing key with "item exists".
func isAlreadyExists(err error) bool {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return false
	}
	return strings.Contains(strings.ToLower(redisErr.Error()), "exists")
}
