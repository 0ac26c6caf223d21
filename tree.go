package nnfind

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/nnfind/internal/arena"
)

// maxTreeDepth stops leaf splitting. Beyond it leaves grow without bound,
// which only happens for many coincident particles.
const maxTreeDepth = 17

// presplitDepth is the depth of the eight octant leaves created up front.
const presplitDepth = 3

// atomRecord is one selected particle stored in a leaf.
type atomRecord struct {
	pos   r3.Vec       // wrapped absolute position
	index int          // original particle index
	next  arena.Handle // next atom in the same leaf
}

// treeNode is either an internal node (splitDim >= 0) or a leaf (splitDim == -1).
type treeNode struct {
	splitDim int8
	numAtoms int32
	splitPos float64         // reduced coordinate of the split plane
	children [2]arena.Handle // internal nodes only
	atoms    arena.Handle    // leaves only: head of the atom list

	// region in reduced coordinates: the half-open box produced by midpoint
	// bisection of the root region. Every atom below the node lies inside it.
	region r3.Box
	// minc and maxc are the absolute corners of region, set by finalize.
	minc, maxc r3.Vec
}

func (n *treeNode) isLeaf() bool { return n.splitDim < 0 }

// component returns the coordinate of v along dim.
func component(v r3.Vec, dim int) float64 {
	switch dim {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setComponent(v *r3.Vec, dim int, x float64) {
	switch dim {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
}

// tree owns the node and atom storage while it is being built.
type tree struct {
	cell       Cell
	nodes      *arena.Slab[treeNode]
	atoms      *arena.Slab[atomRecord]
	root       arena.Handle
	bucketSize int
	stats      Stats
}

func newTree(cell Cell, bucketSize, chunkSize int, acquirer arena.MemoryAcquirer) *tree {
	var opts []arena.Option
	if acquirer != nil {
		opts = append(opts, arena.WithMemoryAcquirer(acquirer))
	}
	return &tree{
		cell:       cell,
		nodes:      arena.New[treeNode](chunkSize, opts...),
		atoms:      arena.New[atomRecord](chunkSize, opts...),
		root:       arena.Nil,
		bucketSize: bucketSize,
	}
}

// init creates the root with the given reduced region and splits it into
// eight octant leaves (x first, then y, then z).
func (t *tree) init(region r3.Box) error {
	h, root, err := t.nodes.Alloc()
	if err != nil {
		return err
	}
	*root = treeNode{splitDim: -1, atoms: arena.Nil, region: region}
	t.root = h
	t.stats.Nodes = 1
	t.stats.Leaves = 1

	level := []arena.Handle{h}
	for dim := 0; dim < 3; dim++ {
		next := make([]arena.Handle, 0, 2*len(level))
		for _, lh := range level {
			if err := t.split(lh, dim); err != nil {
				return err
			}
			n := t.nodes.Get(lh)
			next = append(next, n.children[0], n.children[1])
		}
		level = next
	}
	t.stats.MaxDepth = presplitDepth
	return nil
}

// insert adds an already allocated atom record and refines the leaf that receives it.
func (t *tree) insert(ah arena.Handle, rec *atomRecord) error {
	reduced := t.cell.AbsoluteToReduced(rec.pos)

	h := t.root
	depth := 0
	n := t.nodes.Get(h)
	for !n.isLeaf() {
		if component(reduced, int(n.splitDim)) < n.splitPos {
			h = n.children[0]
		} else {
			h = n.children[1]
		}
		n = t.nodes.Get(h)
		depth++
	}

	rec.next = n.atoms
	n.atoms = ah
	n.numAtoms++
	t.stats.Atoms++
	t.stats.MaxDepth = max(t.stats.MaxDepth, depth)

	return t.refine(h, depth)
}

// refine splits an over-full leaf and, recursively, any child that is still over-full.
func (t *tree) refine(h arena.Handle, depth int) error {
	n := t.nodes.Get(h)
	if int(n.numAtoms) <= t.bucketSize || depth >= maxTreeDepth {
		return nil
	}
	if err := t.split(h, t.splitDirection(n)); err != nil {
		return err
	}
	t.stats.MaxDepth = max(t.stats.MaxDepth, depth+1)

	children := n.children
	for _, c := range children {
		if err := t.refine(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// splitDirection picks the axis along which the leaf region is longest in
// absolute units.
func (t *tree) splitDirection(n *treeNode) int {
	size := n.region.Size()
	best, bestDim := 0.0, 0
	for dim := 0; dim < 3; dim++ {
		s := component(size, dim)
		d := r3.Norm2(t.cell.Vector(dim)) * s * s
		if d > best {
			best, bestDim = d, dim
		}
	}
	return bestDim
}

// split turns the leaf h into an internal node with two leaf children
// bisecting its region along dim, and moves its atoms into them.
func (t *tree) split(h arena.Handle, dim int) error {
	c0h, c0, err := t.nodes.Alloc()
	if err != nil {
		return err
	}
	c1h, c1, err := t.nodes.Alloc()
	if err != nil {
		return err
	}

	n := t.nodes.Get(h)
	mid := (component(n.region.Min, dim) + component(n.region.Max, dim)) * 0.5

	*c0 = treeNode{splitDim: -1, atoms: arena.Nil, region: n.region}
	*c1 = treeNode{splitDim: -1, atoms: arena.Nil, region: n.region}
	setComponent(&c0.region.Max, dim, mid)
	setComponent(&c1.region.Min, dim, mid)

	for a := n.atoms; a.Valid(); {
		rec := t.atoms.Get(a)
		next := rec.next
		child := c1
		if t.cell.reducedComponent(rec.pos, dim) < mid {
			child = c0
		}
		rec.next = child.atoms
		child.atoms = a
		child.numAtoms++
		a = next
	}

	n.splitDim = int8(dim) //nolint:gosec // dim in [0,3)
	n.splitPos = mid
	n.children = [2]arena.Handle{c0h, c1h}
	n.atoms = arena.Nil
	n.numAtoms = 0

	t.stats.Nodes += 2
	t.stats.Leaves++
	return nil
}

// finalize converts every node region to absolute corners. Nodes are
// never modified afterwards.
func (t *tree) finalize() {
	for i := 0; i < t.nodes.Len(); i++ {
		n := t.nodes.Get(arena.Handle(i)) //nolint:gosec // bounded by slab length
		n.minc = t.cell.ReducedToAbsolute(n.region.Min)
		n.maxc = t.cell.ReducedToAbsolute(n.region.Max)
	}
}
