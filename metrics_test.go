package nnfind

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	assert.Equal(t, BasicMetricsStats{}, m.GetStats())

	m.RecordBuild(100, 60, 10*time.Millisecond, nil)
	m.RecordBuild(100, 0, 20*time.Millisecond, ErrDegenerateCell)
	m.RecordParallelQueries(100, 4*time.Millisecond, nil)

	s := m.GetStats()
	assert.Equal(t, int64(2), s.BuildCount)
	assert.Equal(t, int64(1), s.BuildErrors)
	assert.Equal(t, (15 * time.Millisecond).Nanoseconds(), s.BuildAvgNanos)
	assert.Equal(t, int64(100), s.BuildParticles)
	assert.Equal(t, int64(60), s.BuildAtoms)
	assert.Equal(t, int64(1), s.ParallelRuns)
	assert.Equal(t, int64(100), s.ParallelQueries)
	assert.Equal(t, (4 * time.Millisecond).Nanoseconds(), s.ParallelAvgNanos)

	var noop MetricsCollector = NoopMetricsCollector{}
	noop.RecordBuild(1, 1, time.Second, nil)
	noop.RecordParallelQueries(1, time.Second, nil)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).WithK(4).WithCount(10)
	ctx := context.Background()

	l.LogBuild(ctx, Stats{Particles: 10, Atoms: 7}, time.Millisecond, nil)
	assert.Contains(t, buf.String(), `"msg":"build completed"`)
	assert.Contains(t, buf.String(), `"k":4`)
	assert.Contains(t, buf.String(), `"atoms":7`)

	buf.Reset()
	l.LogBuild(ctx, Stats{}, time.Millisecond, canceledError(context.Canceled))
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"msg":"build canceled"`)

	buf.Reset()
	l.LogBuild(ctx, Stats{}, time.Millisecond, ErrInvalidK)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)

	buf.Reset()
	l.LogParallel(ctx, 10, 2, time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), `"msg":"parallel queries stopped"`)

	buf.Reset()
	NoopLogger().LogBuild(ctx, Stats{}, 0, ErrInvalidK)
	assert.Empty(t, buf.String())

	o := applyOptions([]Option{WithLogLevel(slog.LevelWarn)})
	assert.False(t, o.logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, o.logger.Enabled(ctx, slog.LevelWarn))
}
