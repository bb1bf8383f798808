// Package metric exports database metrics to Prometheus.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/wormdb"
)

// PrometheusCollector implements wormdb.MetricsCollector with Prometheus
// counters and histograms.
type PrometheusCollector struct {
	opLatency   *prometheus.HistogramVec
	gets        *prometheus.CounterVec
	appendRows  prometheus.Counter
	rebuildRows *prometheus.CounterVec
	backupBytes prometheus.Counter
}

var _ wormdb.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. namespace prefixes every metric name.
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of database operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_gets_total",
			Help:      "Row reads by cache outcome",
		}, []string{"cache"}),
		appendRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_rows_total",
			Help:      "Rows committed by append sessions",
		}),
		rebuildRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuild_rows_total",
			Help:      "Rows indexed by rebuilds",
		}, []string{"index"}),
		backupBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Uncompressed bytes backed up",
		}),
	}
	for _, m := range []prometheus.Collector{c.opLatency, c.gets, c.appendRows, c.rebuildRows, c.backupBytes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *PrometheusCollector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordGet(cached bool, d time.Duration, err error) {
	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	c.gets.WithLabelValues(outcome).Inc()
	c.observe("get", d, err)
}

func (c *PrometheusCollector) RecordAppend(rows int, d time.Duration, err error) {
	c.appendRows.Add(float64(rows))
	c.observe("append", d, err)
}

func (c *PrometheusCollector) RecordRebuild(index string, rows int, d time.Duration, err error) {
	if err == nil {
		c.rebuildRows.WithLabelValues(index).Add(float64(rows))
	}
	c.observe("rebuild", d, err)
}

func (c *PrometheusCollector) RecordLookup(d time.Duration, err error) {
	c.observe("lookup", d, err)
}

func (c *PrometheusCollector) RecordBackup(_ int, bytes int64, d time.Duration, err error) {
	if err == nil {
		c.backupBytes.Add(float64(bytes))
	}
	c.observe("backup", d, err)
}

func (c *PrometheusCollector) RecordRestore(_ int, _ int64, d time.Duration, err error) {
	c.observe("restore", d, err)
}
