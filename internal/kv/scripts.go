package kv

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

// popReadyDomainScript pops the head of the ready queue and returns it
// together with the fields a consumer needs to decide whether the domain is
// actually fetchable, in one round trip.
var popReadyDomainScript = redis.NewScript(`
local domain = redis.call('LPOP', KEYS[1])
if not domain then
  return false
end
local rec = redis.call('HMGET', 'domain:' .. domain,
  'next_fetch_time', 'is_excluded', 'frontier_offset', 'frontier_size', 'file_path')
return {domain, rec[1], rec[2], rec[3], rec[4], rec[5]}
`)

// DomainSnapshot is the ready-queue pop result: the domain plus the index
// fields of its record at pop time.
type DomainSnapshot struct {
	Domain         string
	NextFetchTime  int64
	IsExcluded     bool
	FrontierOffset int64
	FrontierSize   int64
	FilePath       string
}

// PopReadyDomain pops one domain from the pod's ready queue. Returns
// (nil, nil) when the queue is empty. A popped domain with no record yet
// comes back with zero-valued fields; the caller treats it as exhausted.
func PopReadyDomain(ctx context.Context, client redis.Cmdable) (*DomainSnapshot, failure.ClassifiedError) {
	raw, err := popReadyDomainScript.Run(ctx, client, []string{DomainsQueueKey}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 6 {
		return nil, &KVError{Message: "pop-ready-domain returned malformed reply", Cause: ErrCauseBadReply}
	}
	snap := &DomainSnapshot{
		Domain:         replyString(fields[0]),
		NextFetchTime:  replyInt(fields[1]),
		IsExcluded:     replyInt(fields[2]) == 1,
		FrontierOffset: replyInt(fields[3]),
		FrontierSize:   replyInt(fields[4]),
		FilePath:       replyString(fields[5]),
	}
	return snap, nil
}

// ClearZombieLocks scans and deletes every domain write-lock in the pod.
// Run once at startup before any writer is permitted to start; a lock found
// here belongs to a process that died holding it.
func ClearZombieLocks(ctx context.Context, client redis.Cmdable) (int, failure.ClassifiedError) {
	var cursor uint64
	cleared := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, LockKeyPattern, 1000).Result()
		if err != nil {
			return cleared, Classify(err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return cleared, Classify(err)
			}
			cleared += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return cleared, nil
		}
	}
}

func replyString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func replyInt(v interface{}) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case string:
		n, _ := strconv.ParseInt(value, 10, 64)
		return n
	default:
		return 0
	}
}
