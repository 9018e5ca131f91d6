// Package metrics provides Prometheus metrics collection and exposure for
// the digest pipeline and exposure engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is the interface the orchestrator and its component
// stages record against.
type MetricsCollector interface {
	RecordScrapeSuccess(sourceID string)
	RecordScrapeFailure(sourceID string, reason string)
	RecordCacheHit()
	RecordCacheMiss()
	RecordEnrichmentLatency(stage string, duration time.Duration)
	RecordNVDRateLimitWait(duration time.Duration)
	RecordClusterSize(size int)
	RecordBriefingSuccess()
	RecordBriefingFailure()
	RecordExposureReclassification(state string)
	RecordDigestRun(userID string, matched, summarized int)
}

// Collector is the Prometheus-backed implementation.
type Collector struct {
	scrapeSuccess     prometheus.Counter
	scrapeFail        *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	enrichmentLatency *prometheus.HistogramVec
	nvdRateWait       prometheus.Histogram
	clusterSize       prometheus.Histogram
	briefingSuccess   prometheus.Counter
	briefingFail      prometheus.Counter
	exposureReclass   *prometheus.CounterVec
	digestRuns        prometheus.Counter
	digestMatched     prometheus.Counter
	digestSummarized  prometheus.Counter
}

// NewCollector builds a Collector and registers every metric on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scrapeSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_scrape_success_total",
			Help: "Total successful source scrapes.",
		}),
		scrapeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cyberdigest_scrape_fail_total",
			Help: "Total failed source scrapes, by reason.",
		}, []string{"reason"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_scrape_cache_hit_total",
			Help: "Scraper cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_scrape_cache_miss_total",
			Help: "Scraper cache misses.",
		}),
		enrichmentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cyberdigest_enrichment_latency_seconds",
			Help:    "Latency of enrichment stages (content/entity/cve/brief), by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		nvdRateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cyberdigest_nvd_rate_limit_wait_seconds",
			Help:    "Time spent blocked on the NVD sliding-window rate limiter.",
			Buckets: prometheus.DefBuckets,
		}),
		clusterSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cyberdigest_cluster_size",
			Help:    "Size of clusters produced by the clusterer.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		briefingSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_briefing_success_total",
			Help: "Briefings generated successfully.",
		}),
		briefingFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_briefing_fail_total",
			Help: "Briefings that failed validation or the LLM call.",
		}),
		exposureReclass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cyberdigest_exposure_reclassification_total",
			Help: "Exposure state transitions written by the auto-classifier, by resulting state.",
		}, []string{"state"}),
		digestRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_digest_runs_total",
			Help: "Completed per-user digest pipeline runs.",
		}),
		digestMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_digest_matched_total",
			Help: "Articles matched across all digest runs.",
		}),
		digestSummarized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cyberdigest_digest_summarized_total",
			Help: "Groups successfully briefed across all digest runs.",
		}),
	}

	reg.MustRegister(
		c.scrapeSuccess,
		c.scrapeFail,
		c.cacheHits,
		c.cacheMisses,
		c.enrichmentLatency,
		c.nvdRateWait,
		c.clusterSize,
		c.briefingSuccess,
		c.briefingFail,
		c.exposureReclass,
		c.digestRuns,
		c.digestMatched,
		c.digestSummarized,
	)

	return c
}

// RecordScrapeSuccess records a successful source fetch.
func (c *Collector) RecordScrapeSuccess(sourceID string) { c.scrapeSuccess.Inc() }

// RecordScrapeFailure records a failed source fetch, tagged by reason.
func (c *Collector) RecordScrapeFailure(sourceID string, reason string) {
	c.scrapeFail.WithLabelValues(reason).Inc()
}

// RecordCacheHit records a scraper cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records a scraper cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// RecordEnrichmentLatency records how long a named pipeline stage took.
func (c *Collector) RecordEnrichmentLatency(stage string, duration time.Duration) {
	c.enrichmentLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordNVDRateLimitWait records time spent blocked in the NVD limiter.
func (c *Collector) RecordNVDRateLimitWait(duration time.Duration) {
	c.nvdRateWait.Observe(duration.Seconds())
}

// RecordClusterSize records the size of one clusterer output group.
func (c *Collector) RecordClusterSize(size int) { c.clusterSize.Observe(float64(size)) }

// RecordBriefingSuccess records a successfully narrated group.
func (c *Collector) RecordBriefingSuccess() { c.briefingSuccess.Inc() }

// RecordBriefingFailure records a group whose briefing LLM call failed
// validation or the call itself.
func (c *Collector) RecordBriefingFailure() { c.briefingFail.Inc() }

// RecordExposureReclassification records an auto-classifier write, tagged
// by the resulting exposure state.
func (c *Collector) RecordExposureReclassification(state string) {
	c.exposureReclass.WithLabelValues(state).Inc()
}

// RecordDigestRun records one completed per-user pipeline run.
func (c *Collector) RecordDigestRun(userID string, matched, summarized int) {
	c.digestRuns.Inc()
	c.digestMatched.Add(float64(matched))
	c.digestSummarized.Add(float64(summarized))
}

// Handler returns the Prometheus scrape HTTP handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute mounts the handler at /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
