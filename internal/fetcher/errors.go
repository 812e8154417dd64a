package fetcher

import (
	"fmt"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

// Error taxonomy. Every network-level failure surfaces as status_code=0 with
// one of these tags on the visited record and the fetch-error metric.
type FetchErrorCause string

const (
	ErrCauseTimeout          FetchErrorCause = "timeout"
	ErrCauseDNS              FetchErrorCause = "dns_error"
	ErrCauseConnection       FetchErrorCause = "connection_error"
	ErrCauseSSL              FetchErrorCause = "ssl_error"
	ErrCauseTooManyRedirects FetchErrorCause = "too_many_redirects"
	ErrCauseInvalidResponse  FetchErrorCause = "invalid_response"
)

type FetchError struct {
	Message string
	Cause   FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error: %s", e.Cause)
}

// A failed fetch is terminal for its URL: the result is recorded and the URL
// is not re-enqueued.
func (e *FetchError) Severity() failure.Severity {
	return failure.SeverityFatal
}
