// Package bloomtest provides an in-memory BloomCmdable double for packages
// whose tests run against miniredis, which has no RedisBloom module.
package bloomtest

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Fake mimics RedisBloom over a plain set: BF.MADD reports, per element,
// whether it was newly added; membership is exact (no false positives).
type Fake struct {
	mu       sync.Mutex
	reserved bool
	capacity int64
	seen     map[string]struct{}
	madds    int
}

func New() *Fake {
	return &Fake{seen: make(map[string]struct{})}
}

func (f *Fake) BFReserve(ctx context.Context, key string, errorRate float64, capacity int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = true
	f.capacity = capacity
	return redis.NewStatusResult("OK", nil)
}

func (f *Fake) BFMAdd(ctx context.Context, key string, elements ...interface{}) *redis.BoolSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *Fake) BFExists(ctx context.Context, key string, element interface{}) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[element.(string)]
	return redis.NewBoolResult(ok, nil)
}

// Contains reports exact membership, for assertions.
func (f *Fake) Contains(element string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[element]
	return ok
}

// Len reports how many elements were added.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// MAdds reports how many BF.MADD round trips were issued.
func (f *Fake) MAdds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.madds
}

// Capacity reports the reserved capacity.
func (f *Fake) Capacity() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity
}
