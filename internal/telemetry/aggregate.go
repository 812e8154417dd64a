package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AggregatedCollector exposes the cross-pod counter totals on the
// orchestrator's /metrics endpoint. Values come from the per-pod KV
// mirrors, so they cover every process without scraping child registries.
type AggregatedCollector struct {
	pods map[int]StatsReader

	pagesDesc *prometheus.Desc
	urlsDesc  *prometheus.Desc
	fetchDesc *prometheus.Desc
	parseDesc *prometheus.Desc
}

func NewAggregatedCollector(pods map[int]StatsReader) *AggregatedCollector {
	return &AggregatedCollector{
		pods: pods,
		pagesDesc: prometheus.NewDesc(
			"crawler_cluster_pages_crawled_total",
			"Pages crawled across all pods and processes.", nil, nil),
		urlsDesc: prometheus.NewDesc(
			"crawler_cluster_urls_added_total",
			"URLs added across all pods and processes.", nil, nil),
		fetchDesc: prometheus.NewDesc(
			"crawler_cluster_fetch_errors_total",
			"Fetch errors across all pods and processes.", nil, nil),
		parseDesc: prometheus.NewDesc(
			"crawler_cluster_parse_errors_total",
			"Parse errors across all pods and processes.", nil, nil),
	}
}

func (c *AggregatedCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pagesDesc
	ch <- c.urlsDesc
	ch <- c.fetchDesc
	ch <- c.parseDesc
}

func (c *AggregatedCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats := ReadStats(ctx, c.pods)
	ch <- prometheus.MustNewConstMetric(c.pagesDesc, prometheus.CounterValue, float64(stats.PagesCrawled))
	ch <- prometheus.MustNewConstMetric(c.urlsDesc, prometheus.CounterValue, float64(stats.URLsAdded))
	ch <- prometheus.MustNewConstMetric(c.fetchDesc, prometheus.CounterValue, float64(stats.FetchErrors))
	ch <- prometheus.MustNewConstMetric(c.parseDesc, prometheus.CounterValue, float64(stats.ParseErrors))
}
