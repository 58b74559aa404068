// Package prometheus exports grid metrics through a Prometheus registry.
//
//	c := prometheus.NewCollector(prom.DefaultRegisterer, "dem")
//	g, _ := gridstore.New[float32](rows, cols, -9999, gridstore.WithMetricsCollector(c))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/gridstore"
)

const namespace = "gridstore"

var _ gridstore.MetricsCollector = (*Collector)(nil)

// Collector implements gridstore.MetricsCollector with Prometheus metrics.
type Collector struct {
	swapLatency  *prometheus.HistogramVec
	swapBytes    *prometheus.CounterVec
	outOfMemory  prometheus.Counter
	evictions    *prometheus.CounterVec
	flushLatency prometheus.Histogram
	flushed      prometheus.Counter
}

// NewCollector creates the metrics, labels them with grid and registers them
// with reg. A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer, grid string) *Collector {
	labels := prometheus.Labels{"grid": grid}
	c := &Collector{
		swapLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "swap_latency_seconds",
			Help:        "Latency of chunk swap transfers.",
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 10),
			ConstLabels: labels,
		}, []string{"direction", "status"}),
		swapBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "swap_bytes_total",
			Help:        "Bytes moved between memory and the swap store.",
			ConstLabels: labels,
		}, []string{"direction"}),
		outOfMemory: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "out_of_memory_total",
			Help:        "Allocations refused by the memory limit.",
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "evictions_total",
			Help:        "Eviction requests by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "flush_latency_seconds",
			Help:        "Latency of grid flushes.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "flushed_chunks_total",
			Help:        "Chunks written by flushes.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(c.swapLatency, c.swapBytes, c.outOfMemory, c.evictions, c.flushLatency, c.flushed)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordSwapOut(bytes int, d time.Duration, err error) {
	c.swapLatency.WithLabelValues("out", status(err)).Observe(d.Seconds())
	if err == nil {
		c.swapBytes.WithLabelValues("out").Add(float64(bytes))
	}
}

func (c *Collector) RecordSwapIn(bytes int, d time.Duration, err error) {
	c.swapLatency.WithLabelValues("in", status(err)).Observe(d.Seconds())
	if err == nil {
		c.swapBytes.WithLabelValues("in").Add(float64(bytes))
	}
}

func (c *Collector) RecordOutOfMemory() {
	c.outOfMemory.Inc()
}

func (c *Collector) RecordEviction(freed int, err error) {
	switch {
	case err != nil:
		c.evictions.WithLabelValues("error").Inc()
	case freed == 0:
		c.evictions.WithLabelValues("nothing_to_evict").Inc()
	default:
		c.evictions.WithLabelValues("success").Add(float64(freed))
	}
}

func (c *Collector) RecordFlush(chunks int, d time.Duration, err error) {
	c.flushLatency.Observe(d.Seconds())
	c.flushed.Add(float64(chunks))
}
