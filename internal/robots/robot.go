package robots

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rohmanhakim/pod-crawler/internal/robots/cache"
)

/*
Responsibilities

- Serve parsed robots rules per domain
- Cache bodies in the domain record with an absolute expiry
- Fetch through the trusted path on cache miss

Robots checks occur before a URL is fetched, never before it enters the
frontier: a rule added while a URL sits queued still takes effect.
*/

// unreachableTTL caps how long a 5xx/timeout outcome is cached.
const unreachableTTL = time.Hour

type Robot struct {
	fetcher  *Fetcher
	cache    cache.Cache
	cacheTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewRobot(fetcher *Fetcher, c cache.Cache, cacheTTL time.Duration, log zerolog.Logger) *Robot {
	return &Robot{
		fetcher:  fetcher,
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

// Rules returns the robots policy for domain, fetching and caching the body
// when no live cache entry exists. Cache failures degrade to a fetch; fetch
// failures degrade to allow-all (cached briefly so the host is not
// hammered).
func (r *Robot) Rules(ctx context.Context, domain string) Rules {
	body, live, err := r.cache.Get(ctx, domain)
	if err != nil {
		r.log.Warn().Err(err).Str("domain", domain).Msg("robots cache read failed")
	}
	if live {
		return ParseRules(body)
	}

	body, outcome := r.fetcher.Fetch(ctx, domain)

	ttl := r.cacheTTL
	if outcome == OutcomeUnreachable {
		body = ""
		if ttl > unreachableTTL {
			ttl = unreachableTTL
		}
	}
	expires := r.now().Add(ttl)
	if err := r.cache.Put(ctx, domain, body, expires); err != nil {
		r.log.Warn().Err(err).Str("domain", domain).Msg("robots cache write failed")
	}
	return ParseRules(body)
}
