package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcherWithClient("test-agent/1.0", &http.Client{
		Timeout: 2 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	})
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL+"/page")
	assert.Equal(t, 200, result.StatusCode)
	assert.Empty(t, result.ErrorTag)
	assert.False(t, result.IsRedirect)
	assert.True(t, result.IsHTML())
	assert.Contains(t, result.Text, "hello")
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL+"/start")
	assert.Equal(t, 200, result.StatusCode)
	assert.True(t, result.IsRedirect)
	assert.Equal(t, server.URL+"/start", result.InitialURL)
	assert.Equal(t, server.URL+"/final", result.FinalURL)
}

func TestFetchTooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Zero(t, result.StatusCode)
	assert.Equal(t, string(ErrCauseTooManyRedirects), result.ErrorTag)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestFetch404KeepsRealStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Equal(t, 404, result.StatusCode)
	assert.Empty(t, result.ErrorTag)
}

func TestFetchConnectionError(t *testing.T) {
	// nothing listens on this port
	result := testFetcher(t).Fetch(context.Background(), "http://127.0.0.1:1/")
	assert.Zero(t, result.StatusCode)
	assert.Equal(t, string(ErrCauseConnection), result.ErrorTag)
}

func TestFetchDNSError(t *testing.T) {
	result := testFetcher(t).Fetch(context.Background(), "http://no-such-host.invalid/")
	assert.Zero(t, result.StatusCode)
	assert.Equal(t, string(ErrCauseDNS), result.ErrorTag)
}

func TestFetchGzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("<html><body>compressed</body></html>"))
		zw.Close()
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Equal(t, 200, result.StatusCode)
	assert.Contains(t, string(result.Body), "compressed")
}

func TestFetchCharsetFromContentType(t *testing.T) {
	// "café" in ISO-8859-1
	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("<html><body>café</body></html>"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(encoded)
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Contains(t, result.Text, "café")
}

func TestFetchCharsetFromMeta(t *testing.T) {
	body := `<html><head><meta charset="iso-8859-2"></head><body>caf` + "\xe9" + `</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no charset in the header; only the meta tag knows
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Contains(t, result.Text, "café")
}

func TestFetchInvalidBytesFallBackToReplacement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("ok \xff\xfe bytes"))
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Contains(t, result.Text, "ok ")
	assert.True(t, strings.Contains(result.Text, "�") || !strings.Contains(result.Text, "\xff"))
}

func TestFetchNonTextSkipsDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	result := testFetcher(t).Fetch(context.Background(), server.URL)
	assert.Equal(t, 200, result.StatusCode)
	assert.Empty(t, result.Text)
	assert.False(t, result.IsHTML())
	assert.True(t, result.HasBody())
}

func TestDecompressDeflateBothFlavors(t *testing.T) {
	// raw flate
	var raw bytes.Buffer
	fw, err := flate.NewWriter(&raw, flate.DefaultCompression)
	require.NoError(t, err)
	fw.Write([]byte("deflated"))
	fw.Close()

	out, err := decompress(raw.Bytes(), "deflate")
	require.NoError(t, err)
	assert.Equal(t, "deflated", string(out))

	// zlib-wrapped flate
	var wrapped bytes.Buffer
	zw := zlib.NewWriter(&wrapped)
	zw.Write([]byte("zlibbed"))
	zw.Close()

	out, err = decompress(wrapped.Bytes(), "deflate")
	require.NoError(t, err)
	assert.Equal(t, "zlibbed", string(out))
}

func TestDecompressUnknownEncoding(t *testing.T) {
	_, err := decompress([]byte("x"), "zstd")
	assert.Error(t, err)
}

func TestClassifyTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	f := NewFetcherWithClient("test-agent/1.0", &http.Client{Timeout: 50 * time.Millisecond})
	result := f.Fetch(context.Background(), server.URL)
	assert.Zero(t, result.StatusCode)
	assert.Equal(t, string(ErrCauseTimeout), result.ErrorTag)
}
