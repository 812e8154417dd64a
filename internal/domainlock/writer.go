package domainlock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

/*
Domain write-lock: cross-process within a pod.

Acquired by SETNX lock:domain:{domain} with no TTL; released by DEL in a
guaranteed-exit block. A writer that dies holding the lock leaves a zombie,
which the orchestrator clears at startup (kv.ClearZombieLocks) before any
writer starts. Waiters retry with exponential backoff plus jitter up to an
overall deadline; exceeding the deadline is recoverable (the caller logs and
skips this write).
*/

const (
	initialBackoff  = 100 * time.Millisecond
	maxBackoff      = 2 * time.Second
	acquireDeadline = 30 * time.Second
)

// LockCmdable is the slice of the KV client surface the writer lock needs.
type LockCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type WriterLock struct {
	client LockCmdable
}

func NewWriterLock(client LockCmdable) *WriterLock {
	return &WriterLock{client: client}
}

// Acquire takes the write-lock for domain, blocking with backoff until it is
// held or the 30 s deadline passes. The returned release function must run in
// a deferred (guaranteed-exit) block.
func (w *WriterLock) Acquire(ctx context.Context, domain string) (func(), failure.ClassifiedError) {
	key := kv.LockKey(domain)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialBackoff
	policy.MaxInterval = maxBackoff
	policy.MaxElapsedTime = acquireDeadline

	var lastErr error
	err := backoff.Retry(func() error {
		ok, err := w.client.SetNX(ctx, key, 1, 0).Result()
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		if lastErr != nil {
			return nil, kv.Classify(lastErr)
		}
		return nil, &LockError{
			Message: "deadline exceeded waiting for " + key,
			Cause:   ErrCauseAcquireTimeout,
		}
	}

	release := func() {
		// release must not inherit a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.client.Del(releaseCtx, key).Err()
	}
	return release, nil
}
