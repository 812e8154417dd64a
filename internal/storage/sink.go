package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/fileutil"
	"github.com/rohmanhakim/pod-crawler/pkg/hashutil"
)

/*
Responsibilities
- Persist extracted text, sharded across the configured data directories
- Record visited-page metadata in the pod KV
- Ensure deterministic filenames

Output Characteristics
- Path is a pure function of the URL: data_dirs[hash(url) mod n]/content/{sha256(url)}.txt
- Write-once by construction; concurrent writers to the same path produce
  identical content
*/

// VisitedCmdable is the slice of the KV client surface the sink needs.
type VisitedCmdable interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type Sink struct {
	dataDirs []string
	client   VisitedCmdable
	log      zerolog.Logger
}

func NewSink(dataDirs []string, client VisitedCmdable, log zerolog.Logger) *Sink {
	return &Sink{dataDirs: dataDirs, client: client, log: log}
}

// ContentHash returns the sha256 hex of the UTF-8 bytes of text.
func ContentHash(text string) string {
	hash, _ := hashutil.HashBytes([]byte(text), hashutil.HashAlgoSHA256)
	return hash
}

// ContentPath returns where SaveText would place the text for url.
func (s *Sink) ContentPath(url string) string {
	dir := s.dataDirs[hashutil.Shard(url, len(s.dataDirs))]
	return filepath.Join(dir, "content", hashutil.URLKey(url)+".txt")
}

// SaveText writes text to the URL's content path and returns the path.
// Empty text writes nothing and returns "". I/O errors are logged and
// return ""; the caller records an empty content path and moves on.
func (s *Sink) SaveText(url string, text string) string {
	if text == "" {
		return ""
	}
	path := s.ContentPath(url)
	if err := writeFile(path, []byte(text)); err != nil {
		s.log.Error().Err(err).Str("url", url).Str("path", path).Msg("content write failed")
		return ""
	}
	return path
}

// RecordVisit stores the visited hash for the record's URL. Last write wins
// on a duplicate URL.
func (s *Sink) RecordVisit(ctx context.Context, record VisitedRecord) failure.ClassifiedError {
	key := kv.VisitedKey(hashutil.URLKey(record.URL))
	_, err := kv.WithRetry(ctx, func() (int64, error) {
		return s.client.HSet(ctx, key, record.fields()).Result()
	})
	return err
}

func writeFile(path string, content []byte) failure.ClassifiedError {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      path,
		}
	}
	return nil
}
