package nnfind

import (
	"log/slog"
	"time"

	"github.com/hupe1980/nnfind/resource"
)

const (
	// DefaultNumNeighbors is the number of neighbors a Query collects by default.
	DefaultNumNeighbors = 16

	// DefaultProgressInterval is the minimum time between two progress reports.
	DefaultProgressInterval = 100 * time.Millisecond

	minBucketSize = 8
)

type options struct {
	numNeighbors     int
	bucketSize       int // 0 selects max(k/2, 8)
	selection        Selection
	progress         ProgressFunc
	progressInterval time.Duration
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
	multipleImages   bool
	chunkSize        int
}

// Option configures Build.
type Option func(*options)

// WithNumNeighbors sets the number of neighbors k collected by queries
// created with Finder.NewQuery. The default is 16.
func WithNumNeighbors(k int) Option {
	return func(o *options) {
		o.numNeighbors = k
	}
}

// WithBucketSize sets the maximum number of atoms a leaf holds before it is
// split. The default is max(k/2, 8).
//
// Smaller buckets give deeper trees and fewer distance evaluations per query
// at the cost of more nodes.
func WithBucketSize(b int) Option {
	return func(o *options) {
		o.bucketSize = b
	}
}

// WithSelection restricts the neighbor candidates to the selected particles.
// Pass nil to select every particle.
func WithSelection(sel Selection) Option {
	return func(o *options) {
		o.selection = sel
	}
}

// WithProgress installs a callback that receives build progress.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithProgressInterval sets the minimum time between two progress reports.
// Non-positive values report on every check.
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) {
		o.progressInterval = d
	}
}

// WithLogger configures structured logging for builds.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := nnfind.NewJSONLogger(slog.LevelDebug)
//	finder, _ := nnfind.Build(ctx, pos, cell, nnfind.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &nnfind.BasicMetricsCollector{}
//	finder, _ := nnfind.Build(ctx, pos, cell, nnfind.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
//	fmt.Printf("Builds: %d, Avg: %dns\n", stats.BuildCount, stats.BuildAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithResourceController charges tree storage against a shared controller and
// takes a build slot from it. Several builds may share one controller.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMemoryLimit caps the memory reserved for tree nodes and atom records.
// Builds that would exceed it fail with ErrMemoryLimitExceeded.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.controller = resource.NewController(resource.Config{MemoryLimitBytes: bytes})
	}
}

// WithMultipleImages lets several periodic images of the same particle
// appear in one result list. By default each particle appears at most once,
// at its nearest image.
func WithMultipleImages() Option {
	return func(o *options) {
		o.multipleImages = true
	}
}

// WithChunkSize sets the number of nodes or atom records per storage chunk.
// It is rounded up to a power of two.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		numNeighbors:     DefaultNumNeighbors,
		progressInterval: DefaultProgressInterval,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.bucketSize == 0 {
		o.bucketSize = max(o.numNeighbors/2, minBucketSize)
	}
	return o
}
