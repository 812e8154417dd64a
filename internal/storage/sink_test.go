package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/pkg/hashutil"
)

func testSink(t *testing.T, dataDirs []string) (*Sink, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSink(dataDirs, client, zerolog.Nop()), client
}

func TestSaveTextWritesShardedPath(t *testing.T) {
	dirs := []string{filepath.Join(t.TempDir(), "d0"), filepath.Join(t.TempDir(), "d1")}
	sink, _ := testSink(t, dirs)

	url := "https://example.com/page"
	path := sink.SaveText(url, "extracted text")
	require.NotEmpty(t, path)

	wantDir := dirs[hashutil.Shard(url, 2)]
	assert.True(t, strings.HasPrefix(path, wantDir), "path %s not under %s", path, wantDir)
	assert.Equal(t, hashutil.URLKey(url)+".txt", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "extracted text", string(content))
}

func TestSaveTextEmptyTextWritesNothing(t *testing.T) {
	dir := t.TempDir()
	sink, _ := testSink(t, []string{dir})

	path := sink.SaveText("https://example.com/", "")
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveTextIOErrorReturnsEmpty(t *testing.T) {
	// a data dir that is actually a file makes every write fail
	bogus := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(bogus, []byte("x"), 0644))
	sink, _ := testSink(t, []string{bogus})

	path := sink.SaveText("https://example.com/", "text")
	assert.Empty(t, path)
}

func TestSaveTextIdempotentForSameURL(t *testing.T) {
	sink, _ := testSink(t, []string{t.TempDir()})
	url := "https://example.com/"

	first := sink.SaveText(url, "same text")
	second := sink.SaveText(url, "same text")
	assert.Equal(t, first, second)
}

func TestRecordVisit(t *testing.T) {
	sink, client := testSink(t, []string{t.TempDir()})
	ctx := context.Background()

	record := VisitedRecord{
		URL:         "https://example.com/",
		FinalURL:    "https://example.com/home",
		Domain:      "example.com",
		Status:      StatusOK,
		StatusCode:  200,
		CrawledAt:   time.Unix(1_700_000_000, 0),
		ContentType: "text/html",
		ContentHash: ContentHash("body"),
		ContentPath: "/data/content/abc.txt",
	}
	require.Nil(t, sink.RecordVisit(ctx, record))

	key := kv.VisitedKey(hashutil.URLKey(record.URL))
	fields, err := client.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", fields["url"])
	assert.Equal(t, "https://example.com/home", fields["final_url"])
	assert.Equal(t, "200", fields["status_code"])
	assert.Equal(t, "ok", fields["status"])
	assert.Equal(t, "1700000000", fields["crawled_at"])
	assert.NotContains(t, fields, "redirected_from")
	assert.NotContains(t, fields, "error")
}

func TestRecordVisitLastWriteWins(t *testing.T) {
	sink, client := testSink(t, []string{t.TempDir()})
	ctx := context.Background()

	base := VisitedRecord{
		URL: "https://example.com/", Domain: "example.com",
		Status: StatusError, StatusCode: 0, CrawledAt: time.Unix(1, 0), ErrorTag: "timeout",
	}
	require.Nil(t, sink.RecordVisit(ctx, base))

	base.Status = StatusOK
	base.StatusCode = 200
	base.CrawledAt = time.Unix(2, 0)
	require.Nil(t, sink.RecordVisit(ctx, base))

	key := kv.VisitedKey(hashutil.URLKey(base.URL))
	fields, err := client.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "200", fields["status_code"])
	assert.Equal(t, "2", fields["crawled_at"])
}

func TestContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("hello"), ContentHash("hello"))
	assert.Len(t, ContentHash("hello"), 64)
	assert.NotEqual(t, ContentHash("hello"), ContentHash("world"))
}
