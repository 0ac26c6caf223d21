package nnfind

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
//
// Queries themselves are never instrumented: they are too short-lived and
// must not allocate.
type MetricsCollector interface {
	// RecordBuild is called after each Build.
	// particles is the number of input particles, selected the number of
	// atoms stored in the tree, err is nil if successful.
	RecordBuild(particles, selected int, duration time.Duration, err error)

	// RecordParallelQueries is called after each ForEachParticle run.
	// count is the number of queries that completed.
	RecordParallelQueries(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordParallelQueries(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount         atomic.Int64
	BuildErrors        atomic.Int64
	BuildTotalNanos    atomic.Int64
	BuildParticles     atomic.Int64
	BuildAtoms         atomic.Int64
	ParallelRuns       atomic.Int64
	ParallelErrors     atomic.Int64
	ParallelQueries    atomic.Int64
	ParallelTotalNanos atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(particles, selected int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildParticles.Add(int64(particles))
	b.BuildAtoms.Add(int64(selected))
}

// RecordParallelQueries implements MetricsCollector.
func (b *BasicMetricsCollector) RecordParallelQueries(count int, duration time.Duration, err error) {
	b.ParallelRuns.Add(1)
	b.ParallelQueries.Add(int64(count))
	b.ParallelTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ParallelErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:       b.BuildCount.Load(),
		BuildErrors:      b.BuildErrors.Load(),
		BuildAvgNanos:    avgNanos(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		BuildParticles:   b.BuildParticles.Load(),
		BuildAtoms:       b.BuildAtoms.Load(),
		ParallelRuns:     b.ParallelRuns.Load(),
		ParallelErrors:   b.ParallelErrors.Load(),
		ParallelQueries:  b.ParallelQueries.Load(),
		ParallelAvgNanos: avgNanos(b.ParallelTotalNanos.Load(), b.ParallelRuns.Load()),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount       int64
	BuildErrors      int64
	BuildAvgNanos    int64
	BuildParticles   int64
	BuildAtoms       int64
	ParallelRuns     int64
	ParallelErrors   int64
	ParallelQueries  int64
	ParallelAvgNanos int64
}
