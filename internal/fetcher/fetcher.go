package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

/*
Responsibilities

- Perform HTTP requests through a shared, bounded connection pool
- Handle redirects safely
- Decompress and decode response bodies
- Classify transport failures into the error taxonomy

The fetcher never parses content; it only returns bytes, decoded text, and
metadata. TLS identity is not verified: the crawler consumes public content
and correctness of the peer certificate is not required.
*/

const (
	totalTimeout   = 30 * time.Second
	connectTimeout = 10 * time.Second
	idleTimeout    = 30 * time.Second
	dnsCacheTTL    = 300 * time.Second
	perHostConns   = 20
	maxRedirects   = 10
	// responses beyond this are truncated; pathological bodies must not pin
	// worker memory
	maxBodyBytes = 16 << 20
)

var errTooManyRedirects = errors.New("stopped after too many redirects")

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewFetcher builds a pooled client sized for `workers` concurrent fetch
// workers sharing it.
func NewFetcher(userAgent string, workers int) *Fetcher {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:           newDNSCache(dnsCacheTTL).dialContext(dialer),
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
		MaxConnsPerHost:       perHostConns,
		MaxIdleConnsPerHost:   perHostConns,
		MaxIdleConns:          workers * 2,
		IdleConnTimeout:       idleTimeout,
		// Accept-Encoding is set explicitly; decompression happens below so
		// deflate and brotli are covered alongside gzip
		DisableCompression: true,
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   totalTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

// NewFetcherWithClient is for tests.
func NewFetcherWithClient(userAgent string, client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client, userAgent: userAgent}
}

// Fetch performs one GET. Failures never surface as Go errors to the loop:
// the result carries status_code=0 plus the taxonomy tag.
func (f *Fetcher) Fetch(ctx context.Context, url string) FetchResult {
	result := FetchResult{InitialURL: url, FinalURL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.ErrorTag = string(ErrCauseInvalidResponse)
		result.ErrorMessage = err.Error()
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		cause := classify(err)
		result.ErrorTag = string(cause)
		result.ErrorMessage = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.FinalURL = resp.Request.URL.String()
	result.IsRedirect = result.FinalURL != result.InitialURL

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.StatusCode = 0
		result.ErrorTag = string(classifyRead(err))
		result.ErrorMessage = fmt.Sprintf("reading body: %v", err)
		return result
	}

	body, err := decompress(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		result.StatusCode = 0
		result.ErrorTag = string(ErrCauseInvalidResponse)
		result.ErrorMessage = fmt.Sprintf("decompressing body: %v", err)
		return result
	}
	result.Body = body
	if isTextual(result.ContentType) {
		result.Text = decodeText(body, result.ContentType)
	}
	return result
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "json")
}

func decompress(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	case "deflate":
		// servers disagree on whether deflate means zlib or raw flate
		if reader, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer reader.Close()
			return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	case "br":
		return io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(body)), maxBodyBytes))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

func classify(err error) FetchErrorCause {
	if errors.Is(err, errTooManyRedirects) {
		return ErrCauseTooManyRedirects
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrCauseDNS
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) ||
		strings.Contains(err.Error(), "tls:") {
		return ErrCauseSSL
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCauseTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCauseTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrCauseConnection
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "connection reset") {
		return ErrCauseConnection
	}

	return ErrCauseInvalidResponse
}

func classifyRead(err error) FetchErrorCause {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCauseTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCauseTimeout
	}
	return ErrCauseInvalidResponse
}
