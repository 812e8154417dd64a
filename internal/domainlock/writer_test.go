package domainlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAcquireAndRelease(t *testing.T) {
	mr, client := testClient(t)
	lock := NewWriterLock(client)

	release, err := lock.Acquire(context.Background(), "example.com")
	require.Nil(t, err)
	assert.True(t, mr.Exists(kv.LockKey("example.com")))

	release()
	assert.False(t, mr.Exists(kv.LockKey("example.com")))
}

func TestAcquireWaitsForHolder(t *testing.T) {
	_, client := testClient(t)
	lock := NewWriterLock(client)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "example.com")
	require.Nil(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		secondRelease, err := lock.Acquire(ctx, "example.com")
		if err == nil {
			close(acquired)
			secondRelease()
		}
	}()

	// the waiter backs off while the lock is held
	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(150 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never succeeded after release")
	}
	wg.Wait()
}

func TestAcquireRespectsContextCancel(t *testing.T) {
	_, client := testClient(t)
	lock := NewWriterLock(client)

	release, err := lock.Acquire(context.Background(), "example.com")
	require.Nil(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(ctx, "example.com")
	assert.NotNil(t, err)
}

func TestReadTableSerializesPerDomain(t *testing.T) {
	table := NewReadTable()

	unlock := table.Lock("a.test")
	// a different domain is independent and must not block
	done := make(chan struct{})
	go func() {
		u := table.Lock("b.test")
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on unrelated domain blocked")
	}

	// same domain blocks until unlock
	sameDone := make(chan struct{})
	go func() {
		u := table.Lock("a.test")
		u()
		close(sameDone)
	}()
	select {
	case <-sameDone:
		t.Fatal("lock on held domain did not block")
	case <-time.After(100 * time.Millisecond):
	}
	unlock()
	select {
	case <-sameDone:
	case <-time.After(time.Second):
		t.Fatal("lock never released")
	}

	assert.Equal(t, 2, table.Size())
}

func TestReadTableCountsCriticalSections(t *testing.T) {
	table := NewReadTable()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := table.Lock("a.test")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, counter)
}
