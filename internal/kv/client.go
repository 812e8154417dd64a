package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/retry"
	"github.com/rohmanhakim/pod-crawler/pkg/timeutil"
)

/*
Pod KV access.

Every pod owns exactly one KV instance; all of a pod's state (domain records,
ready queue, seen bloom, parse queue, ingress list, visited records, locks)
lives there. This package opens clients, classifies client errors, and holds
the Lua scripts that collapse multi-step operations into one round trip.

The hot paths (frontier batch adds, fetch-queue pushes) pipeline their
commands; per-call wrappers stay out of the way.
*/

// Open connects to the KV instance at url (redis://host:port/db). The pool
// is sized for hundreds of workers sharing one client inside a process.
func Open(url string, workers int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, Classify(err)
	}
	poolSize := workers * 2
	if poolSize < 16 {
		poolSize = 16
	}
	opts.PoolSize = poolSize
	opts.MinIdleConns = workers / 4
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 10 * time.Second
	return redis.NewClient(opts), nil
}

// Ping verifies the instance is reachable; an unreachable pod KV is fatal
// for that pod.
func Ping(ctx context.Context, client redis.Cmdable) failure.ClassifiedError {
	if err := client.Ping(ctx).Err(); err != nil {
		return &KVError{Message: err.Error(), Cause: ErrCauseUnavailable, Wrapped: err}
	}
	return nil
}

// transient-failure retry policy: at most 3 attempts with a small backoff
func transientRetryParam() retry.RetryParam {
	return retry.NewRetryParam(
		20*time.Millisecond,
		time.Now().UnixNano(),
		3,
		timeutil.NewBackoffParam(50*time.Millisecond, 2.0, 500*time.Millisecond),
	)
}

// WithRetry runs op, retrying transient KV failures up to 3 attempts. A
// persistent failure surfaces as the classified error of the last attempt.
func WithRetry[T any](ctx context.Context, op func() (T, error)) (T, failure.ClassifiedError) {
	result := retry.Retry(ctx, transientRetryParam(), timeutil.NewRealSleeper(), func() (T, failure.ClassifiedError) {
		v, err := op()
		if err != nil {
			return v, Classify(err)
		}
		return v, nil
	})
	if result.Err() != nil {
		if classified, ok := result.Err().(failure.ClassifiedError); ok {
			var zero T
			return zero, classified
		}
		var zero T
		return zero, Classify(result.Err())
	}
	return result.Value(), nil
}
