// Package prometheus exports nnfind build and query metrics to Prometheus.
package prometheus

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/nnfind"
)

// DefaultNamespace prefixes every metric name unless overridden.
const DefaultNamespace = "nnfind"

var _ nnfind.MetricsCollector = (*Collector)(nil)

// Collector implements nnfind.MetricsCollector with Prometheus counters and
// histograms.
type Collector struct {
	builds          *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	particles       prometheus.Counter
	atoms           prometheus.Counter
	parallelRuns    *prometheus.CounterVec
	parallelQueries prometheus.Counter
	parallelLatency prometheus.Histogram
}

// Option configures a Collector.
type Option func(*config)

type config struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the metric namespace. The default is "nnfind".
func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithBuckets sets the histogram buckets in seconds.
func WithBuckets(buckets []float64) Option {
	return func(c *config) {
		c.buckets = buckets
	}
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	cfg := config{
		namespace: DefaultNamespace,
		buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs .. ~26s
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Collector{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "builds_total",
			Help:      "Total tree builds by status",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of tree builds",
			Buckets:   cfg.buckets,
		}, []string{"status"}),
		particles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "build_particles_total",
			Help:      "Input particles of successful builds",
		}),
		atoms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "build_atoms_total",
			Help:      "Selected particles stored by successful builds",
		}),
		parallelRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "parallel_runs_total",
			Help:      "Total ForEachParticle runs by status",
		}, []string{"status"}),
		parallelQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "parallel_queries_total",
			Help:      "Neighbor queries completed by ForEachParticle",
		}),
		parallelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "parallel_duration_seconds",
			Help:      "Duration of ForEachParticle runs",
			Buckets:   cfg.buckets,
		}),
	}

	for _, m := range []prometheus.Collector{
		c.builds, c.buildDuration, c.particles, c.atoms,
		c.parallelRuns, c.parallelQueries, c.parallelLatency,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector is like NewCollector but panics on registration errors.
func MustNewCollector(reg prometheus.Registerer, opts ...Option) *Collector {
	c, err := NewCollector(reg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, nnfind.ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// RecordBuild implements nnfind.MetricsCollector.
func (c *Collector) RecordBuild(particles, selected int, duration time.Duration, err error) {
	s := status(err)
	c.builds.WithLabelValues(s).Inc()
	c.buildDuration.WithLabelValues(s).Observe(duration.Seconds())
	if err == nil {
		c.particles.Add(float64(particles))
		c.atoms.Add(float64(selected))
	}
}

// RecordParallelQueries implements nnfind.MetricsCollector.
func (c *Collector) RecordParallelQueries(count int, duration time.Duration, err error) {
	c.parallelRuns.WithLabelValues(status(err)).Inc()
	c.parallelQueries.Add(float64(count))
	c.parallelLatency.Observe(duration.Seconds())
}
