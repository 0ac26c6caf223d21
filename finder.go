package nnfind

import (
	"context"
	"time"
	"unsafe"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/nnfind/internal/arena"
	"github.com/hupe1980/nnfind/resource"
)

// Stats describes the shape of a built tree.
type Stats struct {
	Particles   int    // input particles
	Atoms       int    // selected particles stored in the tree
	Nodes       int    // internal nodes and leaves
	Leaves      int    // leaf nodes
	MaxDepth    int    // depth of the deepest leaf (the root has depth 0)
	Images      int    // periodic images visited per query
	MemoryBytes uint64 // bytes reserved for nodes, atoms and wrapped positions
}

// Finder is an immutable spatial index over one snapshot of particle
// positions. It is created by Build and answers any number of concurrent
// queries; each goroutine needs its own Query.
type Finder struct {
	userCell  Cell
	cell      Cell // working copy: 2D cells get a thin z extent
	normals   [3]r3.Vec
	images    []r3.Vec
	positions []r3.Vec // wrapped positions of every particle

	nodes *arena.Slab[treeNode]
	atoms *arena.Slab[atomRecord]
	root  arena.Handle

	k           int
	distinct    bool
	maxReliable float64
	stats       Stats

	controller *resource.Controller
	posBytes   int64
	closed     bool

	metrics MetricsCollector
	logger  *Logger
}

// Build constructs a Finder over pos inside cell.
//
// Particles are wrapped into the primary cell image along periodic axes.
// Only selected particles (see WithSelection) become neighbor candidates,
// but every particle can be used as a query point.
//
// If ctx is canceled the build stops and returns an error wrapping both
// ErrCanceled and ctx.Err(). A returned Finder is always complete.
func Build(ctx context.Context, pos Positions, cell Cell, opts ...Option) (*Finder, error) {
	o := applyOptions(opts)
	start := time.Now()

	if pos == nil {
		pos = VecPositions(nil)
	}

	f, err := build(ctx, pos, cell, &o)
	elapsed := time.Since(start)

	var stats Stats
	if f != nil {
		stats = f.stats
	}
	o.metricsCollector.RecordBuild(pos.Len(), stats.Atoms, elapsed, err)
	o.logger.WithK(o.numNeighbors).WithCount(pos.Len()).LogBuild(ctx, stats, elapsed, err)

	return f, err
}

func build(ctx context.Context, pos Positions, cell Cell, o *options) (*Finder, error) {
	n := pos.Len()

	if o.numNeighbors <= 0 {
		return nil, newBuildError("validate", -1, ErrInvalidK)
	}
	if o.bucketSize < 1 {
		return nil, newBuildError("validate", -1, ErrInvalidBucketSize)
	}
	if l, ok := o.selection.(lengthed); ok && l.Len() < n {
		return nil, newBuildError("validate", -1, ErrSelectionLength)
	}

	work := cell
	if cell.Is2D() {
		work = cell.withFlatZ()
	}
	if work.Volume3D() <= volumeEpsilon {
		return nil, newBuildError("validate", -1, ErrDegenerateCell)
	}

	if err := o.controller.AcquireBuild(ctx); err != nil {
		return nil, newBuildError("acquire", -1, canceledError(err))
	}
	defer o.controller.ReleaseBuild()

	f := &Finder{
		userCell:    cell,
		cell:        work,
		images:      periodicImages(work),
		k:           o.numNeighbors,
		distinct:    !o.multipleImages,
		maxReliable: maxReliableDistance(work),
		controller:  o.controller,
		root:        arena.Nil,
		metrics:     o.metricsCollector,
		logger:      o.logger,
	}
	for dim := 0; dim < 3; dim++ {
		f.normals[dim] = work.NormalVector(dim)
	}

	posBytes := int64(n) * int64(unsafe.Sizeof(r3.Vec{}))
	if err := o.controller.AcquireMemory(posBytes); err != nil {
		return nil, newBuildError("acquire", -1, err)
	}
	f.posBytes = posBytes
	f.positions = make([]r3.Vec, n)

	selected := func(i int) bool {
		return o.selection == nil || o.selection.Contains(i)
	}

	region, err := rootRegion(ctx, pos, work, selected)
	if err != nil {
		f.Close()
		return nil, newBuildError("insert", -1, err)
	}

	var acquirer arena.MemoryAcquirer
	if o.controller != nil {
		acquirer = o.controller
	}
	t := newTree(work, o.bucketSize, o.chunkSize, acquirer)
	f.nodes, f.atoms = t.nodes, t.atoms

	if err := t.init(region); err != nil {
		f.Close()
		return nil, newBuildError("insert", -1, err)
	}

	progress := newProgressReporter(o.progress, n, o.progressInterval)

	for i := 0; i < n; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				f.Close()
				return nil, newBuildError("insert", i, canceledError(err))
			}
			progress.report(i)
		}

		p := work.WrapPoint(pos.Position(i))
		f.positions[i] = p
		if !selected(i) {
			continue
		}

		ah, rec, err := t.atoms.Alloc()
		if err != nil {
			f.Close()
			return nil, newBuildError("insert", i, err)
		}
		*rec = atomRecord{pos: p, index: i, next: arena.Nil}
		if err := t.insert(ah, rec); err != nil {
			f.Close()
			return nil, newBuildError("insert", i, err)
		}
	}

	if err := ctx.Err(); err != nil {
		f.Close()
		return nil, newBuildError("finalize", -1, canceledError(err))
	}

	t.finalize()
	progress.finish()

	f.root = t.root
	f.stats = t.stats
	f.stats.Particles = n
	f.stats.Images = len(f.images)
	f.stats.MemoryBytes = t.nodes.Stats().BytesReserved + t.atoms.Stats().BytesReserved + uint64(posBytes) //nolint:gosec // non-negative

	return f, nil
}

// rootRegion returns the reduced unit cube, extended along non-periodic axes
// so that it covers every selected particle.
func rootRegion(ctx context.Context, pos Positions, cell Cell, selected func(int) bool) (r3.Box, error) {
	region := r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}

	pbc := cell.PBC()
	if pbc[0] && pbc[1] && pbc[2] {
		return region, nil
	}

	for i := 0; i < pos.Len(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return region, canceledError(err)
			}
		}
		if !selected(i) {
			continue
		}
		rp := cell.AbsoluteToReduced(pos.Position(i))
		for dim := 0; dim < 3; dim++ {
			if pbc[dim] {
				continue
			}
			c := component(rp, dim)
			if c < component(region.Min, dim) {
				setComponent(&region.Min, dim, c)
			}
			if c > component(region.Max, dim) {
				setComponent(&region.Max, dim, c)
			}
		}
	}
	return region, nil
}

// NumParticles returns the number of input particles.
func (f *Finder) NumParticles() int { return len(f.positions) }

// NumSelected returns the number of particles stored as neighbor candidates.
func (f *Finder) NumSelected() int { return f.stats.Atoms }

// NumNeighbors returns the default number of neighbors per query.
func (f *Finder) NumNeighbors() int { return f.k }

// Cell returns the cell passed to Build.
func (f *Finder) Cell() Cell { return f.userCell }

// ParticlePos returns the wrapped position of particle i.
func (f *Finder) ParticlePos(i int) r3.Vec { return f.positions[i] }

// Stats returns the tree statistics.
func (f *Finder) Stats() Stats { return f.stats }

// PeriodicImages returns a copy of the image translations in visiting order.
func (f *Finder) PeriodicImages() []r3.Vec {
	out := make([]r3.Vec, len(f.images))
	copy(out, f.images)
	return out
}

// MaxReliableDistance returns the distance below which results are exact.
// Only one layer of periodic images is searched, so for cells thinner than
// the k-th neighbor distance a closer image of some particle may be missed.
// It is +Inf for non-periodic cells.
func (f *Finder) MaxReliableDistance() float64 { return f.maxReliable }

// Close releases the tree storage and returns its memory to the resource
// controller. The Finder must not be used afterwards. Close is idempotent.
func (f *Finder) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.nodes != nil {
		f.nodes.Free()
	}
	if f.atoms != nil {
		f.atoms.Free()
	}
	f.controller.ReleaseMemory(f.posBytes)
	f.positions = nil
	f.posBytes = 0
	f.root = arena.Nil
	return nil
}

// minimumDistance returns a lower bound of the squared distance between q
// and any point of the node region, valid for sheared cells.
func (f *Finder) minimumDistance(n *treeNode, q r3.Vec) float64 {
	p1 := r3.Sub(n.minc, q)
	p2 := r3.Sub(q, n.maxc)
	d := 0.0
	for dim := 0; dim < 3; dim++ {
		if t := r3.Dot(f.normals[dim], p1); t > d {
			d = t
		}
		if t := r3.Dot(f.normals[dim], p2); t > d {
			d = t
		}
	}
	return d * d
}

// wrapQueryPoint maps an arbitrary point into the primary image.
func (f *Finder) wrapQueryPoint(p r3.Vec) r3.Vec { return f.cell.WrapPoint(p) }
