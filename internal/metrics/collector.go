package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes replication metrics.
type Collector struct {
	objectsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	inflightBatches prometheus.Gauge
	batchDuration   prometheus.Histogram
}

// New creates a collector and registers its metrics.
func New() *Collector {
	c := &Collector{
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repl_objects_total",
				Help: "Total number of objects processed",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "repl_bytes_total",
				Help: "Total bytes replicated",
			},
		),
		inflightBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "repl_inflight_batches",
				Help: "Number of transfer batches currently in flight",
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "repl_batch_duration_seconds",
				Help:    "Time taken by one transfer batch",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	prometheus.MustRegister(c.objectsTotal)
	prometheus.MustRegister(c.bytesTotal)
	prometheus.MustRegister(c.inflightBatches)
	prometheus.MustRegister(c.batchDuration)

	return c
}

// IncReplicated records n successfully replicated objects totaling bytes.
func (c *Collector) IncReplicated(n int, bytes int64) {
	c.objectsTotal.WithLabelValues("replicated").Add(float64(n))
	c.bytesTotal.Add(float64(bytes))
}

// IncFailed records n failed objects.
func (c *Collector) IncFailed(n int) {
	c.objectsTotal.WithLabelValues("failed").Add(float64(n))
}

// AddInflight adjusts the in-flight batch gauge.
func (c *Collector) AddInflight(d int) {
	c.inflightBatches.Add(float64(d))
}

// ObserveBatch observes one batch duration.
func (c *Collector) ObserveBatch(duration time.Duration) {
	c.batchDuration.Observe(duration.Seconds())
}

// StartServer starts the metrics HTTP server.
func (c *Collector) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}
