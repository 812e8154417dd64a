package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
)

// KVCache stores robots bodies inside the owning domain's record: the
// robots_txt and robots_expires fields of domain:{domain}. The body rides
// along with the rest of the domain state and survives restarts.
type KVCache struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewKVCache(client redis.Cmdable) *KVCache {
	return &KVCache{client: client, now: time.Now}
}

// NewKVCacheWithClock injects a clock for tests.
func NewKVCacheWithClock(client redis.Cmdable, now func() time.Time) *KVCache {
	return &KVCache{client: client, now: now}
}

func (c *KVCache) Get(ctx context.Context, domain string) (string, bool, error) {
	fields, err := c.client.HMGet(ctx, kv.DomainKey(domain), kv.FieldRobotsTxt, kv.FieldRobotsExpires).Result()
	if err != nil {
		return "", false, kv.Classify(err)
	}
	if len(fields) != 2 || fields[0] == nil || fields[1] == nil {
		return "", false, nil
	}
	body, _ := fields[0].(string)
	expiresRaw, _ := fields[1].(string)
	expires, convErr := strconv.ParseInt(expiresRaw, 10, 64)
	if convErr != nil {
		return "", false, nil
	}
	if c.now().Unix() >= expires {
		return "", false, nil
	}
	return body, true, nil
}

func (c *KVCache) Put(ctx context.Context, domain string, body string, expires time.Time) error {
	err := c.client.HSet(ctx, kv.DomainKey(domain),
		kv.FieldRobotsTxt, body,
		kv.FieldRobotsExpires, expires.Unix(),
	).Err()
	if err != nil {
		return kv.Classify(err)
	}
	return nil
}
