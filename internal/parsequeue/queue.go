package parsequeue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/timeutil"
)

/*
fetch:queue hand-off between fetchers and parsers.

Single-producer-per-fetcher, multi-consumer FIFO. Ordering across producers
is not guaranteed and not required.

Backpressure: a producer seeing the queue above the soft limit sleeps
briefly before each push; above the hard limit, fetch workers stop popping
domains until the queue drains back below the soft limit.
*/

const (
	popTimeout        = 5 * time.Second
	backpressureSleep = 100 * time.Millisecond
)

type Queue struct {
	client  redis.Cmdable
	soft    int64
	hard    int64
	sleeper timeutil.Sleeper
}

func NewQueue(client redis.Cmdable, softLimit, hardLimit int64) *Queue {
	return &Queue{
		client:  client,
		soft:    softLimit,
		hard:    hardLimit,
		sleeper: timeutil.NewRealSleeper(),
	}
}

// NewQueueWithSleeper is for tests.
func NewQueueWithSleeper(client redis.Cmdable, softLimit, hardLimit int64, sleeper timeutil.Sleeper) *Queue {
	q := NewQueue(client, softLimit, hardLimit)
	q.sleeper = sleeper
	return q
}

// Push appends one serialized fetch result. When the queue sits above the
// soft limit the push is preceded by a brief sleep.
func (q *Queue) Push(ctx context.Context, blob []byte) failure.ClassifiedError {
	length, err := q.client.LLen(ctx, kv.FetchQueueKey).Result()
	if err == nil && length > q.soft {
		q.sleeper.Sleep(ctx, backpressureSleep)
	}
	_, classified := kv.WithRetry(ctx, func() (int64, error) {
		return q.client.RPush(ctx, kv.FetchQueueKey, blob).Result()
	})
	return classified
}

// Pop blocks up to 5 s for the next blob. Returns (nil, nil) on timeout.
func (q *Queue) Pop(ctx context.Context) ([]byte, failure.ClassifiedError) {
	reply, err := q.client.BLPop(ctx, popTimeout, kv.FetchQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, kv.Classify(err)
	}
	if len(reply) != 2 {
		return nil, &kv.KVError{Message: "BLPOP returned malformed reply", Cause: kv.ErrCauseBadReply}
	}
	return []byte(reply[1]), nil
}

// Len returns the current queue depth.
func (q *Queue) Len(ctx context.Context) (int64, failure.ClassifiedError) {
	length, err := q.client.LLen(ctx, kv.FetchQueueKey).Result()
	if err != nil {
		return 0, kv.Classify(err)
	}
	return length, nil
}

// AboveHard reports whether producers must pause domain pops entirely.
func (q *Queue) AboveHard(ctx context.Context) bool {
	length, err := q.Len(ctx)
	return err == nil && length > q.hard
}

// BelowSoft reports whether a paused producer may resume.
func (q *Queue) BelowSoft(ctx context.Context) bool {
	length, err := q.Len(ctx)
	return err != nil || length < q.soft
}

// WaitUntilDrained blocks a paused producer until the queue is back below
// the soft limit or the context ends.
func (q *Queue) WaitUntilDrained(ctx context.Context) {
	for ctx.Err() == nil && !q.BelowSoft(ctx) {
		q.sleeper.Sleep(ctx, backpressureSleep)
	}
}

// PushIngress appends (url, depth) blobs to a pod's ingress list. The
// client may belong to a different pod than the caller's.
func PushIngress(ctx context.Context, client redis.Cmdable, blobs [][]byte) failure.ClassifiedError {
	if len(blobs) == 0 {
		return nil
	}
	values := make([]interface{}, len(blobs))
	for i, b := range blobs {
		values[i] = b
	}
	_, err := kv.WithRetry(ctx, func() (int64, error) {
		return client.RPush(ctx, kv.IngressKey, values...).Result()
	})
	return err
}

// PopIngressBatch drains up to max blobs from this pod's ingress list.
func PopIngressBatch(ctx context.Context, client redis.Cmdable, max int) ([][]byte, failure.ClassifiedError) {
	blobs := make([][]byte, 0, max)
	for len(blobs) < max {
		raw, err := client.LPop(ctx, kv.IngressKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return blobs, kv.Classify(err)
		}
		blobs = append(blobs, []byte(raw))
	}
	return blobs, nil
}
