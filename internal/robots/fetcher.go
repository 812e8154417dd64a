package robots

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

/*
Trusted robots fetch path.

The fetcher loop consults politeness, which consults robots, which may
itself fetch. The cycle is broken here: this client fetches only
{domain}/robots.txt, never enters the frontier, and never calls back into
politeness.
*/

const (
	fetchTimeout = 10 * time.Second
	// robots bodies beyond this are truncated before parsing
	maxBodyBytes = 128 * 1024
)

// FetchOutcome distinguishes how the body should be cached.
type FetchOutcome int

const (
	// OutcomeOK: 2xx, body as served.
	OutcomeOK FetchOutcome = iota
	// OutcomeNoRules: 4xx, cached empty with the normal TTL.
	OutcomeNoRules
	// OutcomeUnreachable: 5xx / timeout / network error, cached empty with a
	// short TTL to avoid hammering.
	OutcomeUnreachable
)

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(userAgent string) *Fetcher {
	transport := &http.Transport{
		// public-content crawler; TLS identity is not verified anywhere
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout, Transport: transport},
		userAgent:  userAgent,
	}
}

// NewFetcherWithClient is for tests.
func NewFetcherWithClient(userAgent string, client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client, userAgent: userAgent}
}

// Fetch retrieves https://{domain}/robots.txt, falling back to http:// when
// the https attempt fails at the transport level.
func (f *Fetcher) Fetch(ctx context.Context, domain string) (string, FetchOutcome) {
	body, outcome, transportErr := f.fetchScheme(ctx, "https", domain)
	if transportErr {
		body, outcome, _ = f.fetchScheme(ctx, "http", domain)
	}
	return body, outcome
}

func (f *Fetcher) fetchScheme(ctx context.Context, scheme string, domain string) (string, FetchOutcome, bool) {
	url := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", OutcomeUnreachable, false
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", OutcomeUnreachable, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return "", OutcomeUnreachable, false
		}
		return string(body), OutcomeOK, false
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", OutcomeNoRules, false
	default:
		return "", OutcomeUnreachable, false
	}
}
