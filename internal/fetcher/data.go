package fetcher

import "strings"

// HTTP boundary

// FetchResult carries everything downstream stages need from one fetch.
// StatusCode 0 means no usable HTTP response arrived (the request failed, or
// the body could not be read or decompressed); ErrorTag then names the
// taxonomy entry.
type FetchResult struct {
	InitialURL   string
	FinalURL     string
	StatusCode   int
	ContentType  string
	Body         []byte
	Text         string
	IsRedirect   bool
	ErrorTag     string
	ErrorMessage string
}

// IsHTML reports whether the response is parseable HTML.
func (r *FetchResult) IsHTML() bool {
	mediaType := r.ContentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// HasBody reports whether any content arrived.
func (r *FetchResult) HasBody() bool {
	return len(r.Body) > 0
}
