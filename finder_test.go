package nnfind

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/nnfind/internal/arena"
	"github.com/hupe1980/nnfind/resource"
	"github.com/hupe1980/nnfind/testutil"
)

func TestBuild_Validation(t *testing.T) {
	pts := VecPositions{{X: 1}, {X: 2}}
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})

	cases := []struct {
		name string
		cell Cell
		opts []Option
		want error
	}{
		{"ZeroK", cell, []Option{WithNumNeighbors(0)}, ErrInvalidK},
		{"NegativeBucket", cell, []Option{WithBucketSize(-1)}, ErrInvalidBucketSize},
		{"ShortSelection", cell, []Option{WithSelection(NewMaskSelection(1))}, ErrSelectionLength},
		{"FlatCell", NewOrthoCell(10, 10, 0, [3]bool{}), nil, ErrDegenerateCell},
		{"CollinearCell", NewCell(r3.Vec{X: 1}, r3.Vec{X: 2}, r3.Vec{Z: 1}, r3.Vec{}, [3]bool{}), nil, ErrDegenerateCell},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Build(context.Background(), pts, tc.cell, tc.opts...)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "validate", be.Stage)
			assert.Equal(t, -1, be.Particle)
		})
	}

	t.Run("LongSelectionIsFine", func(t *testing.T) {
		f, err := Build(context.Background(), pts, cell, WithSelection(NewMaskSelection(10).Set(1)))
		require.NoError(t, err)
		assert.Equal(t, 1, f.NumSelected())
		require.NoError(t, f.Close())
	})
}

func TestBuild_Defaults(t *testing.T) {
	o := applyOptions(nil)
	assert.Equal(t, DefaultNumNeighbors, o.numNeighbors)
	assert.Equal(t, 8, o.bucketSize)
	assert.Equal(t, DefaultProgressInterval, o.progressInterval)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.metricsCollector)

	o = applyOptions([]Option{WithNumNeighbors(40), WithLogger(nil), WithMetricsCollector(nil), nil})
	assert.Equal(t, 20, o.bucketSize)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.metricsCollector)

	o = applyOptions([]Option{WithNumNeighbors(40), WithBucketSize(3)})
	assert.Equal(t, 3, o.bucketSize)
}

// checkTree walks the finished tree and verifies its structural invariants.
func checkTree(t *testing.T, f *Finder, bucketSize int) {
	t.Helper()

	var atoms, leaves, nodes int
	var walk func(h arena.Handle, depth int)
	walk = func(h arena.Handle, depth int) {
		n := f.nodes.Get(h)
		nodes++
		assertVecInDelta(t, f.cell.ReducedToAbsolute(n.region.Min), n.minc, 1e-9)
		assertVecInDelta(t, f.cell.ReducedToAbsolute(n.region.Max), n.maxc, 1e-9)

		if !n.isLeaf() {
			c0, c1 := f.nodes.Get(n.children[0]), f.nodes.Get(n.children[1])
			dim := int(n.splitDim)
			assert.Equal(t, n.splitPos, component(c0.region.Max, dim))
			assert.Equal(t, n.splitPos, component(c1.region.Min, dim))
			walk(n.children[0], depth+1)
			walk(n.children[1], depth+1)
			return
		}

		leaves++
		if depth < maxTreeDepth {
			assert.LessOrEqual(t, int(n.numAtoms), bucketSize)
		}
		count := 0
		for a := n.atoms; a.Valid(); a = f.atoms.Get(a).next {
			rec := f.atoms.Get(a)
			r := f.cell.AbsoluteToReduced(rec.pos)
			for dim := 0; dim < 3; dim++ {
				c := component(r, dim)
				assert.GreaterOrEqual(t, c, component(n.region.Min, dim)-1e-12)
				assert.LessOrEqual(t, c, component(n.region.Max, dim)+1e-12)
			}
			assert.Equal(t, f.ParticlePos(rec.index), rec.pos)
			count++
		}
		assert.Equal(t, int(n.numAtoms), count)
		atoms += count
	}
	walk(f.root, 0)

	st := f.Stats()
	assert.Equal(t, st.Atoms, atoms)
	assert.Equal(t, st.Leaves, leaves)
	assert.Equal(t, st.Nodes, nodes)
	assert.Equal(t, 2*leaves-1, nodes)
}

func TestBuild_TreeInvariants(t *testing.T) {
	rng := testutil.NewRNG(1)

	for name, cell := range map[string]Cell{
		"Periodic": NewOrthoCell(10, 10, 10, [3]bool{true, true, true}),
		"Open":     NewOrthoCell(10, 10, 10, [3]bool{}),
		"Sheared":  shearedCell(),
	} {
		t.Run(name, func(t *testing.T) {
			lat := latticeOf(cell)
			pts := append(rng.UniformPoints(2000, lat), rng.ClusteredPoints(500, lat, 4, 2)...)

			f := mustBuild(t, pts, cell, WithNumNeighbors(12), WithChunkSize(64))
			checkTree(t, f, 8)

			st := f.Stats()
			assert.Equal(t, len(pts), st.Particles)
			assert.Equal(t, len(pts), st.Atoms)
			assert.GreaterOrEqual(t, st.Leaves, 8)
			assert.GreaterOrEqual(t, st.MaxDepth, presplitDepth)
			assert.LessOrEqual(t, st.MaxDepth, maxTreeDepth)
			assert.Positive(t, st.MemoryBytes)
		})
	}
}

func TestBuild_WrapsPositions(t *testing.T) {
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, false, true})
	pts := []r3.Vec{{X: -1, Y: -5, Z: 23}, {X: 15, Y: 15, Z: 5}}

	f := mustBuild(t, pts, cell)
	assertVecInDelta(t, r3.Vec{X: 9, Y: -5, Z: 3}, f.ParticlePos(0), 1e-12)
	assertVecInDelta(t, r3.Vec{X: 5, Y: 15, Z: 5}, f.ParticlePos(1), 1e-12)

	// The open axis is covered by the root region.
	root := f.nodes.Get(f.root)
	assert.InDelta(t, -0.5, root.region.Min.Y, eps)
	assert.InDelta(t, 1.5, root.region.Max.Y, eps)
	assert.Equal(t, 0.0, root.region.Min.X)
	assert.Equal(t, 1.0, root.region.Max.X)
}

func TestFinder_PeriodicImages(t *testing.T) {
	cases := []struct {
		pbc  [3]bool
		want int
	}{
		{[3]bool{}, 1},
		{[3]bool{true, false, false}, 3},
		{[3]bool{true, true, false}, 9},
		{[3]bool{true, true, true}, 27},
	}
	for _, tc := range cases {
		f := mustBuild(t, nil, shearedCellWith(tc.pbc))
		images := f.PeriodicImages()
		require.Len(t, images, tc.want)
		assert.Equal(t, r3.Vec{}, images[0])
		for i := 1; i < len(images); i++ {
			assert.LessOrEqual(t, r3.Norm2(images[i-1]), r3.Norm2(images[i]))
		}
		assert.Equal(t, tc.want, f.Stats().Images)

		// The returned slice is a copy.
		images[0] = r3.Vec{X: 1}
		assert.Equal(t, r3.Vec{}, f.PeriodicImages()[0])
	}
}

func shearedCellWith(pbc [3]bool) Cell {
	c := shearedCell()
	c.SetPBC(pbc)
	return c
}

func TestFinder_MaxReliableDistance(t *testing.T) {
	f := mustBuild(t, nil, NewOrthoCell(10, 12, 14, [3]bool{true, true, true}))
	assert.InDelta(t, 10.0, f.MaxReliableDistance(), eps)

	f = mustBuild(t, nil, NewOrthoCell(10, 12, 14, [3]bool{false, true, true}))
	assert.InDelta(t, 12.0, f.MaxReliableDistance(), eps)

	f = mustBuild(t, nil, NewOrthoCell(10, 12, 14, [3]bool{}))
	assert.True(t, math.IsInf(f.MaxReliableDistance(), 1))

	f = mustBuild(t, nil, shearedCell())
	assert.InDelta(t, shearedCell().Width(0), f.MaxReliableDistance(), eps)
}

func TestFinder_ThinCellSelfImages(t *testing.T) {
	// In a cell one unit thick, the own images of a particle are closer
	// than its only neighbor.
	cell := NewOrthoCell(1, 10, 10, [3]bool{true, true, true})
	pts := []r3.Vec{{X: 0.5, Y: 5, Z: 5}, {X: 0.5, Y: 8, Z: 5}}

	f := mustBuild(t, pts, cell, WithNumNeighbors(2), WithMultipleImages())
	assert.InDelta(t, 1.0, f.MaxReliableDistance(), eps)

	q := f.NewQuery()
	q.FindNeighbors(0)
	res := q.Results()
	require.Len(t, res, 2)
	for _, n := range res {
		assert.Equal(t, 0, n.Index)
		assert.InDelta(t, 1.0, n.Distance(), eps)
	}
}

func TestBuild_Cancellation(t *testing.T) {
	rng := testutil.NewRNG(2)
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
	pts := VecPositions(rng.UniformPoints(5000, latticeOf(cell)))

	t.Run("BeforeStart", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f, err := Build(ctx, pts, cell)
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("DuringInsert", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rc := resource.NewController(resource.Config{})
		var reports []int
		f, err := Build(ctx, pts, cell,
			WithResourceController(rc),
			WithProgressInterval(0),
			WithProgress(func(done, total int) {
				assert.Equal(t, len(pts), total)
				reports = append(reports, done)
				if done >= cancelCheckInterval {
					cancel()
				}
			}),
		)

		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)

		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "insert", be.Stage)
		assert.Equal(t, 2*cancelCheckInterval, be.Particle)
		assert.Equal(t, []int{0, cancelCheckInterval}, reports)

		// Nothing stays reserved after a failed build.
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})

	t.Run("WaitingForBuildSlot", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MaxConcurrentBuilds: 1})
		require.True(t, rc.TryAcquireBuild())
		defer rc.ReleaseBuild()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Build(ctx, pts, cell, WithResourceController(rc))
		assert.ErrorIs(t, err, ErrCanceled)

		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "acquire", be.Stage)
	})
}

func TestBuild_Progress(t *testing.T) {
	rng := testutil.NewRNG(3)
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
	pts := rng.UniformPoints(3000, latticeOf(cell))

	var calls []progressCall
	mustBuild(t, pts, cell, WithProgressInterval(0), WithProgress(func(done, total int) {
		calls = append(calls, progressCall{done, total})
	}))

	assert.Equal(t, []progressCall{{0, 3000}, {1024, 3000}, {2048, 3000}, {3000, 3000}}, calls)
}

func TestBuild_MemoryLimit(t *testing.T) {
	rng := testutil.NewRNG(4)
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
	pts := rng.UniformPoints(10000, latticeOf(cell))
	posBytes := int64(len(pts)) * int64(unsafe.Sizeof(r3.Vec{}))

	t.Run("PositionsDoNotFit", func(t *testing.T) {
		f, err := Build(context.Background(), VecPositions(pts), cell, WithMemoryLimit(1024))
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	})

	t.Run("NodesDoNotFit", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: posBytes + 100})
		f, err := Build(context.Background(), VecPositions(pts), cell, WithResourceController(rc))
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})

	t.Run("AtomsRunOutMidway", func(t *testing.T) {
		rc := resource.NewController(resource.Config{})
		probe := mustBuild(t, pts[:100], cell, WithResourceController(rc), WithChunkSize(16))
		small := int64(probe.Stats().MemoryBytes)
		require.NoError(t, probe.Close())
		require.Equal(t, int64(0), rc.MemoryUsage())

		limited := resource.NewController(resource.Config{MemoryLimitBytes: posBytes + 4*small})
		f, err := Build(context.Background(), VecPositions(pts), cell,
			WithResourceController(limited), WithChunkSize(16))
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrMemoryLimitExceeded)

		var be *BuildError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "insert", be.Stage)
		assert.Positive(t, be.Particle)
		assert.Equal(t, int64(0), limited.MemoryUsage())
	})

	t.Run("FitsAndCloseReleases", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
		f, err := Build(context.Background(), VecPositions(pts), cell, WithResourceController(rc))
		require.NoError(t, err)

		assert.Equal(t, int64(f.Stats().MemoryBytes), rc.MemoryUsage())
		require.NoError(t, f.Close())
		require.NoError(t, f.Close())
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})
}

func TestBuild_Observability(t *testing.T) {
	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
	pts := VecPositions{{X: 1}, {X: 2}, {X: 3}}

	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}

	f, err := Build(context.Background(), pts, cell, WithLogger(logger), WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, buf.String(), "build completed")
	assert.Contains(t, buf.String(), "atoms=3")
	assert.Contains(t, buf.String(), "k=16")

	_, err = Build(context.Background(), pts, cell, WithLogger(logger), WithMetricsCollector(metrics), WithNumNeighbors(-1))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "build failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, pts, cell, WithLogger(logger), WithMetricsCollector(metrics))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "build canceled")

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.BuildCount)
	assert.Equal(t, int64(2), stats.BuildErrors)
	assert.Equal(t, int64(3), stats.BuildParticles)
	assert.Equal(t, int64(3), stats.BuildAtoms)
}

func TestBuildError(t *testing.T) {
	cause := errors.New("boom")
	err := newBuildError("insert", 7, cause)
	assert.Equal(t, "nnfind: build failed at insert (particle 7): boom", err.Error())
	assert.ErrorIs(t, err, cause)

	err = newBuildError("validate", -1, ErrInvalidK)
	assert.Equal(t, "nnfind: build failed at validate: nnfind: k must be positive", err.Error())
}

func TestBuild_FlatPositions(t *testing.T) {
	pos, err := NewFlatPositions([]float64{1, 1, 1, 2, 1, 1, 8, 8, 8})
	require.NoError(t, err)

	cell := NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
	f, err := Build(context.Background(), pos, cell, WithNumNeighbors(1))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 3, f.NumParticles())
	assert.Equal(t, 1, f.NumNeighbors())
	assert.Equal(t, cell, f.Cell())

	q := f.NewQuery()
	q.FindNeighbors(2)
	require.Len(t, q.Results(), 1)
	assert.Equal(t, 0, q.Results()[0].Index)
	assert.InDelta(t, 27.0, q.Results()[0].DistanceSq, eps)
}
