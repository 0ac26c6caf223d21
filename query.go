package nnfind

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/nnfind/internal/arena"
	"github.com/hupe1980/nnfind/internal/queue"
)

// Neighbor is one entry of a query result.
type Neighbor struct {
	Delta      r3.Vec  // displacement from the query point to the neighbor image
	DistanceSq float64 // squared length of Delta
	Index      int     // original particle index
}

// Distance returns the length of Delta.
func (n Neighbor) Distance() float64 { return math.Sqrt(n.DistanceSq) }

// Query finds the k nearest neighbors of a point. It owns its result buffer
// and performs no allocations after construction. A Query is not safe for
// concurrent use; create one per goroutine.
type Query struct {
	f       *Finder
	buf     *queue.Bounded[r3.Vec]
	results []Neighbor

	p  r3.Vec // wrapped query point
	q  r3.Vec // p shifted by the image being visited
	qr r3.Vec // q in reduced coordinates

	excludeIndex int  // query particle, -1 for none
	excludeZero  bool // skip every candidate at zero distance
}

// NewQuery creates a Query that collects NumNeighbors() neighbors.
func (f *Finder) NewQuery() *Query {
	q, _ := f.NewQueryK(f.k)
	return q
}

// NewQueryK creates a Query that collects up to k neighbors.
func (f *Finder) NewQueryK(k int) (*Query, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	return &Query{
		f:            f,
		buf:          queue.NewBounded[r3.Vec](k, f.distinct),
		results:      make([]Neighbor, 0, k),
		excludeIndex: -1,
	}, nil
}

// K returns the capacity of the query.
func (q *Query) K() int { return q.buf.Capacity() }

// FindNeighbors collects the nearest neighbors of particle i.
// Other particles at the same position are reported at zero distance.
// By default particle i is excluded at every periodic image, so it never
// appears in its own result. With WithMultipleImages only the zero-distance
// self entry is excluded and periodic images of particle i may be reported.
func (q *Query) FindNeighbors(i int) {
	q.excludeIndex = i
	q.excludeZero = false
	q.run(q.f.positions[i])
}

// FindNeighborsAt collects the nearest neighbors of an arbitrary point.
// The point is first mapped into the primary cell image. Unless includeSelf
// is set, particles located exactly at the point are skipped; by default
// they are skipped at every periodic image, with WithMultipleImages only
// their zero-distance entries are.
func (q *Query) FindNeighborsAt(p r3.Vec, includeSelf bool) {
	q.excludeIndex = -1
	q.excludeZero = !includeSelf
	q.run(q.f.wrapQueryPoint(p))
}

// Results returns the neighbors found by the last call, closest first.
// The slice is reused by the next call.
func (q *Query) Results() []Neighbor { return q.results }

func (q *Query) run(p r3.Vec) {
	q.buf.Reset()
	q.results = q.results[:0]

	f := q.f
	q.p = p
	if f.root.Valid() && f.stats.Atoms > 0 {
		root := f.nodes.Get(f.root)
		for _, shift := range f.images {
			q.q = r3.Sub(p, shift)
			if q.buf.Full() && q.buf.Top() <= f.minimumDistance(root, q.q) {
				continue
			}
			q.qr = f.cell.AbsoluteToReduced(q.q)
			q.visit(f.root)
		}
	}

	q.buf.Sort()
	for _, it := range q.buf.Items() {
		q.results = append(q.results, Neighbor{
			Delta:      it.Value,
			DistanceSq: it.Distance,
			Index:      it.ID,
		})
	}
}

func (q *Query) visit(h arena.Handle) {
	f := q.f
	n := f.nodes.Get(h)

	if n.isLeaf() {
		for a := n.atoms; a.Valid(); {
			rec := f.atoms.Get(a)
			a = rec.next

			if f.distinct && (rec.index == q.excludeIndex || (q.excludeZero && rec.pos == q.p)) {
				continue
			}
			delta := r3.Sub(rec.pos, q.q)
			d := r3.Norm2(delta)
			if d == 0 && (q.excludeZero || rec.index == q.excludeIndex) {
				continue
			}
			if q.buf.Accepts(d) {
				q.buf.Insert(queue.Item[r3.Vec]{Distance: d, ID: rec.index, Value: delta})
			}
		}
		return
	}

	near, far := n.children[0], n.children[1]
	if component(q.qr, int(n.splitDim)) >= n.splitPos {
		near, far = far, near
	}

	q.visit(near)
	if !q.buf.Full() || q.buf.Top() > f.minimumDistance(f.nodes.Get(far), q.q) {
		q.visit(far)
	}
}

// VisitNeighbors calls visit for every candidate that may lie within the
// current search radius of p, nearest subtrees first. The radius starts
// unbounded; visit may shrink it by lowering *maxDistSq, which prunes the
// remaining traversal. p is first mapped into the primary cell image.
// Candidates at exactly zero distance are skipped unless includeSelf is set.
//
// Unlike Query, VisitNeighbors may report several images of one particle.
func (f *Finder) VisitNeighbors(p r3.Vec, includeSelf bool, visit func(n Neighbor, maxDistSq *float64)) {
	if !f.root.Valid() || f.stats.Atoms == 0 {
		return
	}

	v := visitor{f: f, visit: visit, includeSelf: includeSelf, maxDistSq: math.MaxFloat64}
	p = f.wrapQueryPoint(p)
	root := f.nodes.Get(f.root)
	for _, shift := range f.images {
		q := r3.Sub(p, shift)
		if v.maxDistSq > f.minimumDistance(root, q) {
			v.node(f.root, q, f.cell.AbsoluteToReduced(q))
		}
	}
}

type visitor struct {
	f           *Finder
	visit       func(n Neighbor, maxDistSq *float64)
	includeSelf bool
	maxDistSq   float64
}

func (v *visitor) node(h arena.Handle, q, qr r3.Vec) {
	f := v.f
	n := f.nodes.Get(h)

	if n.isLeaf() {
		for a := n.atoms; a.Valid(); {
			rec := f.atoms.Get(a)
			a = rec.next

			delta := r3.Sub(rec.pos, q)
			d := r3.Norm2(delta)
			if d == 0 && !v.includeSelf {
				continue
			}
			v.visit(Neighbor{Delta: delta, DistanceSq: d, Index: rec.index}, &v.maxDistSq)
		}
		return
	}

	near, far := n.children[0], n.children[1]
	if component(qr, int(n.splitDim)) >= n.splitPos {
		near, far = far, near
	}

	v.node(near, q, qr)
	if v.maxDistSq > f.minimumDistance(f.nodes.Get(far), q) {
		v.node(far, q, qr)
	}
}

// FindClosestParticle returns the index of the particle nearest to p and the
// squared distance to it, considering all periodic images. It returns -1 and
// +Inf when there is no candidate.
func (f *Finder) FindClosestParticle(p r3.Vec, includeSelf bool) (int, float64) {
	closest := -1
	closestSq := math.Inf(1)
	f.VisitNeighbors(p, includeSelf, func(n Neighbor, maxDistSq *float64) {
		if n.DistanceSq < closestSq {
			closestSq = n.DistanceSq
			closest = n.Index
			*maxDistSq = closestSq
		}
	})
	return closest, closestSq
}
