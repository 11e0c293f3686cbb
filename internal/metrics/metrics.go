// Package metrics records per-run collection counters in a private
// Prometheus registry. Batch runs have no scrape endpoint, so the registry is
// written to a node_exporter textfile when the run ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Download outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)

// Collector holds the counters of one run. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	hits       prometheus.Counter
	selected   prometheus.Counter
	failures   *prometheus.CounterVec
	downloads  *prometheus.CounterVec
	bytes      prometheus.Counter
	duration   prometheus.Histogram
	outputRows prometheus.Counter
}

// New creates a Collector backed by a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		hits: f.NewCounter(prometheus.CounterOpts{
			Name: "gdc_maf_metadata_hits_total",
			Help: "Files returned by the GDC files query.",
		}),
		selected: f.NewCounter(prometheus.CounterOpts{
			Name: "gdc_maf_selected_files_total",
			Help: "Files chosen by primary aliquot selection.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gdc_maf_failure_records_total",
			Help: "Failure records by reason.",
		}, []string{"reason"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gdc_maf_downloads_total",
			Help: "Realized downloads by outcome.",
		}, []string{"outcome"}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Name: "gdc_maf_downloaded_bytes_total",
			Help: "Bytes of verified MAF content downloaded.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gdc_maf_download_duration_seconds",
			Help:    "Time spent realizing one download.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		outputRows: f.NewCounter(prometheus.CounterOpts{
			Name: "gdc_maf_output_rows_total",
			Help: "Mutation rows written to the aggregate output.",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Hits counts metadata hits.
func (c *Collector) Hits(n int) {
	if c == nil {
		return
	}
	c.hits.Add(float64(n))
}

// Selected counts files chosen for download.
func (c *Collector) Selected(n int) {
	if c == nil {
		return
	}
	c.selected.Add(float64(n))
}

// Failure counts one failure record.
func (c *Collector) Failure(reason string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(reason).Inc()
}

// Download records one realized download.
func (c *Collector) Download(outcome string, size int, seconds float64) {
	if c == nil {
		return
	}
	c.downloads.WithLabelValues(outcome).Inc()
	c.duration.Observe(seconds)
	if outcome == OutcomeSuccess {
		c.bytes.Add(float64(size))
	}
}

// OutputRows counts rows written to the aggregate.
func (c *Collector) OutputRows(n int) {
	if c == nil {
		return
	}
	c.outputRows.Add(float64(n))
}

// WriteToTextfile writes the registry in text exposition format. The file is
// replaced atomically.
func (c *Collector) WriteToTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
