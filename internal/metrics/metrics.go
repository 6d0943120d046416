// Package metrics collects Prometheus counters for parse and upload runs.
// coursectl is short-lived, so the registry is flushed to a node-exporter
// textfile at exit instead of being scraped.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courseimport"

// Collector holds all metrics of one coursectl run. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	ParseItems          *prometheus.CounterVec
	ParseSkippedItems   prometheus.Counter
	ParseMissingContent prometheus.Counter

	UploadAttempts *prometheus.CounterVec
	UploadRetries  prometheus.Counter
	UploadDuration prometheus.Histogram
	UploadFailures *prometheus.CounterVec
}

// New creates a collector on its own registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		ParseItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_items_total",
				Help:      "Content items accepted by the parser, by type",
			},
			[]string{"type"},
		),
		ParseSkippedItems: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_skipped_items_total",
				Help:      "Content items dropped because of an unknown type",
			},
		),
		ParseMissingContent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_missing_content_total",
				Help:      "Content references replaced by a placeholder",
			},
		),

		UploadAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_attempts_total",
				Help:      "HTTP attempts made against the import endpoint, by status",
			},
			[]string{"status"},
		),
		UploadRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_retries_total",
				Help:      "Attempts repeated by the retry policy",
			},
		),
		UploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Wall time of an upload call including backoff",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		UploadFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_failures_total",
				Help:      "Failed upload calls, by failure kind",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ItemParsed(itemType string) {
	if c == nil {
		return
	}
	c.ParseItems.WithLabelValues(itemType).Inc()
}

func (c *Collector) ItemSkipped() {
	if c == nil {
		return
	}
	c.ParseSkippedItems.Inc()
}

func (c *Collector) ContentMissing() {
	if c == nil {
		return
	}
	c.ParseMissingContent.Inc()
}

// Attempt records one HTTP round-trip; status 0 means no response.
func (c *Collector) Attempt(status int) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.UploadAttempts.WithLabelValues(label).Inc()
}

func (c *Collector) Retry() {
	if c == nil {
		return
	}
	c.UploadRetries.Inc()
}

// UploadDone records the duration of an upload call and, when kind is not
// empty, its failure kind.
func (c *Collector) UploadDone(d time.Duration, kind string) {
	if c == nil {
		return
	}
	c.UploadDuration.Observe(d.Seconds())
	if kind != "" {
		c.UploadFailures.WithLabelValues(kind).Inc()
	}
}

// WriteTextfile writes all metrics in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
