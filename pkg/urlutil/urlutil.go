package urlutil

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/publicsuffix"
)

// Canonical URL handling for the crawler. Three operations, all pure:
//
//   - Normalize maps equivalent URL spellings to one canonical string
//   - ExtractDomain returns the registered (TLD+1) domain
//   - Resolve makes a href absolute against a base URL
//
// Every URL that enters the frontier, the seen bloom, or a visited record
// has passed through Normalize, so string equality is identity equality
// everywhere downstream.

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// normalizeFlags: lowercase scheme/host, canonical percent-encoding, default
// port removal, dot-segment resolution, fragment removal.
const normalizeFlags = purell.FlagsSafe |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveFragment

// Normalize returns the canonical form of rawURL, or "" when the URL is
// malformed, has no host, or is not http(s).
//
// Properties:
//   - Idempotent: Normalize(Normalize(u)) == Normalize(u)
//   - Only http and https schemes survive
//   - URLs differing only in percent-encoding of unreserved characters
//     normalize to the same string
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if !isHTTPScheme(u.Scheme) {
		return ""
	}
	// strip the trailing dot of a fully-qualified host before purell runs,
	// so "example.com." and "example.com" collapse
	u.Host = strings.TrimSuffix(u.Host, ".")
	if u.Hostname() == "" {
		return ""
	}
	return purell.NormalizeURL(u, normalizeFlags)
}

// ExtractDomain returns the registered domain of rawURL as determined by the
// public-suffix list ("bbc.co.uk" for "www.bbc.co.uk"), or "" on failure.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

// Resolve resolves href against base per RFC 3986 and returns the normalized
// absolute URL. Returns "" when href is malformed, or when the resolved
// result is not http(s).
func Resolve(base string, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := baseURL.ResolveReference(ref)
	if !isHTTPScheme(abs.Scheme) {
		return ""
	}
	return Normalize(abs.String())
}

func isHTTPScheme(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == SchemeHTTP || s == SchemeHTTPS
}
