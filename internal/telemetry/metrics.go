package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rohmanhakim/pod-crawler/internal/kv"
)

/*
Crawl metrics.

Each process keeps its own Prometheus registry; in parallel, the four global
counters are mirrored into the pod KV (stats:* keys) so the orchestrator can
read cross-process totals for its stopping conditions without scraping child
registries. The KV mirror is a stop-condition signal, not the metrics system
of record.
*/

// StatsCmdable is the slice of the KV surface the mirror needs.
type StatsCmdable interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
}

type Counters struct {
	pagesCrawled  prometheus.Counter
	urlsAdded     prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	parseErrors   prometheus.Counter
	parseQueueLen prometheus.Gauge

	mirror StatsCmdable
}

// NewCounters registers the crawl counters on reg and mirrors increments to
// the pod KV. mirror may be nil (tests, tools).
func NewCounters(reg prometheus.Registerer, mirror StatsCmdable) *Counters {
	factory := promauto.With(reg)
	return &Counters{
		pagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pages_crawled_total",
			Help: "Pages fetched to completion, successfully or not.",
		}),
		urlsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_urls_added_total",
			Help: "URLs appended to this pod's frontier.",
		}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_errors_total",
			Help: "Fetches that produced no HTTP response, by taxonomy tag.",
		}, []string{"cause"}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_parse_errors_total",
			Help: "Parse-queue blobs that could not be parsed.",
		}),
		parseQueueLen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_parse_queue_length",
			Help: "Current depth of this pod's fetch:queue.",
		}),
		mirror: mirror,
	}
}

func (c *Counters) PageCrawled(ctx context.Context) {
	c.pagesCrawled.Inc()
	c.incrMirror(ctx, kv.StatPagesCrawled, 1)
}

func (c *Counters) URLsAdded(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	c.urlsAdded.Add(float64(n))
	c.incrMirror(ctx, kv.StatURLsAdded, int64(n))
}

func (c *Counters) FetchError(ctx context.Context, cause string) {
	c.fetchErrors.WithLabelValues(cause).Inc()
	c.incrMirror(ctx, kv.StatFetchErrors, 1)
}

func (c *Counters) ParseError(ctx context.Context) {
	c.parseErrors.Inc()
	c.incrMirror(ctx, kv.StatParseErrors, 1)
}

func (c *Counters) SetParseQueueLen(n int64) {
	c.parseQueueLen.Set(float64(n))
}

// mirror failures are swallowed: losing a stat increment must never stall
// the pipeline
func (c *Counters) incrMirror(ctx context.Context, key string, n int64) {
	if c.mirror == nil {
		return
	}
	_ = c.mirror.IncrBy(ctx, key, n).Err()
}

// Stats is the aggregated cross-pod counter view.
type Stats struct {
	PagesCrawled int64
	URLsAdded    int64
	FetchErrors  int64
	ParseErrors  int64
}

// StatsReader is the KV surface aggregation needs.
type StatsReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ReadStats sums the stats mirror across all pods. A pod whose KV is
// unreachable contributes zero; aggregation is best-effort by design.
func ReadStats(ctx context.Context, pods map[int]StatsReader) Stats {
	var total Stats
	for _, client := range pods {
		total.PagesCrawled += readInt(ctx, client, kv.StatPagesCrawled)
		total.URLsAdded += readInt(ctx, client, kv.StatURLsAdded)
		total.FetchErrors += readInt(ctx, client, kv.StatFetchErrors)
		total.ParseErrors += readInt(ctx, client, kv.StatParseErrors)
	}
	return total
}

func readInt(ctx context.Context, client StatsReader, key string) int64 {
	n, err := client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return n
}

// ResetStats clears a pod's counter mirror. Called on a fresh (non-resume)
// start.
func ResetStats(ctx context.Context, client redis.Cmdable) error {
	return client.Del(ctx, kv.StatPagesCrawled, kv.StatURLsAdded, kv.StatFetchErrors, kv.StatParseErrors).Err()
}

// Serve exposes reg on /metrics at the given port until ctx ends.
func Serve(ctx context.Context, port int, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
