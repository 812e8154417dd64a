package politeness

import (
	"context"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/internal/robots"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/urlutil"
)

/*
Politeness enforcer.

Decides, per domain, whether and when the crawler may fetch:
- excluded domains are never fetched
- robots rules for the configured user-agent gate individual URLs
- a per-domain next-eligible-time spaces consecutive fetches by
  max(robots crawl-delay, configured delay)
*/

type Enforcer struct {
	client    redis.Cmdable
	robot     *robots.Robot
	userAgent string
	delay     time.Duration
	now       func() time.Time
}

func NewEnforcer(client redis.Cmdable, robot *robots.Robot, userAgent string, delay time.Duration) *Enforcer {
	return &Enforcer{
		client:    client,
		robot:     robot,
		userAgent: userAgent,
		delay:     delay,
		now:       time.Now,
	}
}

// NewEnforcerWithClock injects a clock for tests.
func NewEnforcerWithClock(client redis.Cmdable, robot *robots.Robot, userAgent string, delay time.Duration, now func() time.Time) *Enforcer {
	e := NewEnforcer(client, robot, userAgent, delay)
	e.now = now
	return e
}

// IsURLAllowed reports whether rawURL may be fetched: false when its domain
// is excluded, otherwise per the domain's robots rules for the configured
// user-agent.
func (e *Enforcer) IsURLAllowed(ctx context.Context, rawURL string) bool {
	domain := urlutil.ExtractDomain(rawURL)
	if domain == "" {
		return false
	}
	if excluded, _ := e.IsDomainExcluded(ctx, domain); excluded {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := parsed.EscapedPath()
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return e.robot.Rules(ctx, domain).Allowed(e.userAgent, path)
}

// IsDomainExcluded consults the pod's exclusion set.
func (e *Enforcer) IsDomainExcluded(ctx context.Context, domain string) (bool, failure.ClassifiedError) {
	excluded, err := e.client.SIsMember(ctx, kv.ExcludedDomainsKey, domain).Result()
	if err != nil {
		return false, kv.Classify(err)
	}
	return excluded, nil
}

// CanFetchDomainNow reads the domain record and reports whether the domain
// is eligible. A domain with no next_fetch_time yet is eligible.
func (e *Enforcer) CanFetchDomainNow(ctx context.Context, domain string) bool {
	next, err := e.client.HGet(ctx, kv.DomainKey(domain), kv.FieldNextFetchTime).Int64()
	if err != nil {
		// missing field or transient failure: do not block the domain
		return true
	}
	return e.CanFetchAt(next)
}

// CanFetchAt is the clock comparison for callers that already hold the
// domain's next_fetch_time (e.g. a ready-queue pop snapshot).
func (e *Enforcer) CanFetchAt(nextFetchTime int64) bool {
	return e.now().Unix() >= nextFetchTime
}

// RecordDomainFetchAttempt pushes the domain's next-eligible-time to
// now + Delay(domain). Called once per completed fetch attempt, success or
// not.
func (e *Enforcer) RecordDomainFetchAttempt(ctx context.Context, domain string) failure.ClassifiedError {
	delay := e.Delay(ctx, domain)
	eligible := e.now().Add(delay)
	// next_fetch_time has second resolution; round up so the spacing is
	// never shorter than the delay
	next := eligible.Unix()
	if delay > 0 && eligible.Nanosecond() > 0 {
		next++
	}
	_, err := kv.WithRetry(ctx, func() (int64, error) {
		return e.client.HSet(ctx, kv.DomainKey(domain), kv.FieldNextFetchTime, next).Result()
	})
	return err
}

// Delay returns max(robots crawl-delay for the agent, configured politeness
// delay).
func (e *Enforcer) Delay(ctx context.Context, domain string) time.Duration {
	crawlDelay := e.robot.Rules(ctx, domain).CrawlDelay(e.userAgent)
	if crawlDelay > e.delay {
		return crawlDelay
	}
	return e.delay
}

// Exclude adds domains to a pod's exclusion set. Exclusion is global, so the
// orchestrator calls this against every pod at startup.
func Exclude(ctx context.Context, client redis.Cmdable, domains []string) failure.ClassifiedError {
	if len(domains) == 0 {
		return nil
	}
	members := make([]interface{}, len(domains))
	for i, d := range domains {
		members[i] = d
	}
	if err := client.SAdd(ctx, kv.ExcludedDomainsKey, members...).Err(); err != nil {
		return kv.Classify(err)
	}
	return nil
}
