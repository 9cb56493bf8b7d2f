// Package metrics provides Prometheus metrics for stack resolution
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

// Metrics tracks frames flowing through the batch pipeline
type Metrics struct {
	framesParsed   prometheus.Counter
	framesResolved prometheus.Counter
	frameFailures  *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	registerer     prometheus.Registerer
	gatherer       prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		framesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackmap_frames_parsed_total",
			Help: "Total number of stack frames parsed from submitted stacks",
		}),
		framesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackmap_frames_resolved_total",
			Help: "Total number of stack frames resolved to an original position",
		}),
		frameFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stackmap_frame_failures_total",
			Help: "Total number of recorded frame failures by kind",
		}, []string{"kind"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stackmap_batch_duration_seconds",
			Help:    "Time spent resolving one stack",
			Buckets: prometheus.DefBuckets,
		}),
		registerer: reg,
		gatherer:   reg,
	}

	reg.MustRegister(m.framesParsed, m.framesResolved, m.frameFailures, m.batchDuration)
	return m
}

// ObserveBatch records the outcome of one batch resolution
func (m *Metrics) ObserveBatch(result sourcemap.BatchResult, duration time.Duration) {
	if m == nil {
		return
	}
	m.framesParsed.Add(float64(len(result.Frames)))
	m.framesResolved.Add(float64(len(result.Successes)))
	for _, f := range result.Failures {
		m.frameFailures.WithLabelValues(f.Kind.String()).Inc()
	}
	m.batchDuration.Observe(duration.Seconds())
}

// ObserveMapped records frames resolved through a bound mapper
func (m *Metrics) ObserveMapped(parsed, resolved int) {
	if m == nil {
		return
	}
	m.framesParsed.Add(float64(parsed))
	m.framesResolved.Add(float64(resolved))
}

// WatchCache exports the number of documents held by the resolver cache
func (m *Metrics) WatchCache(size func() int) {
	if m == nil || size == nil {
		return
	}
	m.registerer.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stackmap_resolver_cache_documents",
		Help: "Number of mapping documents held by the resolver cache",
	}, func() float64 {
		return float64(size())
	}))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
