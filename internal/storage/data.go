package storage

import "time"

// Visit status values stored alongside the HTTP status code.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusDisallowed = "disallowed"
	StatusExcluded   = "excluded"
)

// VisitedRecord is the per-URL metadata hash written after a fetch concludes
// (successfully or not). Immutable once written; a duplicate URL overwrites
// with last-write-wins.
type VisitedRecord struct {
	URL            string
	FinalURL       string
	Domain         string
	Status         string
	StatusCode     int
	CrawledAt      time.Time
	ContentType    string
	ContentHash    string
	ContentPath    string
	RedirectedFrom string
	ErrorTag       string
}

func (r VisitedRecord) fields() map[string]interface{} {
	m := map[string]interface{}{
		"url":         r.URL,
		"final_url":   r.FinalURL,
		"domain":      r.Domain,
		"status":      r.Status,
		"status_code": r.StatusCode,
		"crawled_at":  r.CrawledAt.Unix(),
	}
	if r.ContentType != "" {
		m["content_type"] = r.ContentType
	}
	if r.ContentHash != "" {
		m["content_hash"] = r.ContentHash
	}
	if r.ContentPath != "" {
		m["content_path"] = r.ContentPath
	}
	if r.RedirectedFrom != "" {
		m["redirected_from"] = r.RedirectedFrom
	}
	if r.ErrorTag != "" {
		m["error"] = r.ErrorTag
	}
	return m
}
