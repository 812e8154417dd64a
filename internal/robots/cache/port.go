package cache

import (
	"context"
	"time"
)

// Cache defines the port interface for robots.txt body caching. The fetcher
// logic stays the same whether the body lives in the pod KV (production) or
// in memory (tests).
//
// A cached body may be empty: "no rules" is a valid, cacheable answer.
type Cache interface {
	// Get returns the cached body for domain and whether a live (unexpired)
	// entry was found.
	Get(ctx context.Context, domain string) (string, bool, error)

	// Put stores the body for domain until expires.
	Put(ctx context.Context, domain string, body string, expires time.Time) error
}
