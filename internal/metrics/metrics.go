package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the pipeline's prometheus metrics. A nil *Collector is
// valid and records nothing, so wiring metrics stays optional in tests.
type Collector struct {
	FetchTotal         *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	CacheFallbackTotal *prometheus.CounterVec
	CacheExpiredTotal  *prometheus.CounterVec

	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	ExportTotal   *prometheus.CounterVec
	ExportedItems prometheus.Gauge

	LastCycleSuccess  prometheus.Gauge
	LastExportSuccess prometheus.Gauge
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratefeed_fetch_total",
				Help: "Fetch attempts per source and outcome",
			},
			[]string{"source", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratefeed_fetch_duration_seconds",
				Help:    "Time spent fetching one source, retries included",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"source"},
		),
		CacheFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratefeed_cache_fallback_total",
				Help: "Cycles in which a source was served from last-known-good data",
			},
			[]string{"source"},
		),
		CacheExpiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratefeed_cache_expired_total",
				Help: "Cache lookups refused because the entry exceeded the staleness bound",
			},
			[]string{"source"},
		),
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratefeed_cycles_total",
				Help: "Pipeline cycles by outcome (success, skipped, failed)",
			},
			[]string{"outcome"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratefeed_cycle_duration_seconds",
				Help:    "Full fetch-normalize-export cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		ExportTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratefeed_export_total",
				Help: "Snapshot export attempts by outcome",
			},
			[]string{"outcome"},
		),
		ExportedItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratefeed_exported_items",
				Help: "Number of rates in the last exported snapshot",
			},
		),
		LastCycleSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratefeed_last_cycle_success_timestamp_seconds",
				Help: "Unix time of the last successful cycle",
			},
		),
		LastExportSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratefeed_last_export_success_timestamp_seconds",
				Help: "Unix time of the last successful export",
			},
		),
	}
}

func (c *Collector) RecordFetch(source string, success bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.FetchTotal.WithLabelValues(source, outcome(success)).Inc()
	c.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (c *Collector) RecordCacheFallback(source string) {
	if c == nil {
		return
	}
	c.CacheFallbackTotal.WithLabelValues(source).Inc()
}

func (c *Collector) RecordCacheExpired(source string) {
	if c == nil {
		return
	}
	c.CacheExpiredTotal.WithLabelValues(source).Inc()
}

func (c *Collector) RecordCycle(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.CyclesTotal.WithLabelValues(result).Inc()
	c.CycleDuration.Observe(elapsed.Seconds())
	if result == CycleSuccess {
		c.LastCycleSuccess.SetToCurrentTime()
	}
}

func (c *Collector) RecordExport(success bool, items int) {
	if c == nil {
		return
	}
	c.ExportTotal.WithLabelValues(outcome(success)).Inc()
	if success {
		c.ExportedItems.Set(float64(items))
		c.LastExportSuccess.SetToCurrentTime()
	}
}

// Cycle outcome labels.
const (
	CycleSuccess = "success"
	CycleSkipped = "skipped"
	CycleFailed  = "failed"
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
