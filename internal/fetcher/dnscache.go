package fetcher

import (
	"context"
	"net"
	"sync"
	"time"
)

// dnsCache memoizes hostname resolutions for a bounded TTL so hot domains do
// not hit the resolver on every connection. Failures are cached too: a host
// that does not resolve is not retried until its entry ages out.
type dnsCache struct {
	mu      sync.RWMutex
	entries map[string]dnsEntry
	ttl     time.Duration
	now     func() time.Time
}

type dnsEntry struct {
	addrs      []net.IPAddr
	err        error
	resolvedAt time.Time
}

func newDNSCache(ttl time.Duration) *dnsCache {
	return &dnsCache{
		entries: make(map[string]dnsEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *dnsCache) lookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	c.mu.RLock()
	entry, ok := c.entries[host]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.resolvedAt) < c.ttl {
		return entry.addrs, entry.err
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	c.mu.Lock()
	c.entries[host] = dnsEntry{addrs: addrs, err: err, resolvedAt: c.now()}
	c.mu.Unlock()
	return addrs, err
}

// dialContext resolves through the cache and dials the first usable address.
func (c *dnsCache) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		if ip := net.ParseIP(host); ip != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		addrs, err := c.lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ipAddr := range addrs {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		if lastErr == nil {
			lastErr = &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
		}
		return nil, lastErr
	}
}
