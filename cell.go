package nnfind

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// volumeEpsilon is the smallest cell volume accepted by Build.
const volumeEpsilon = 1e-12

// Cell is an affine simulation cell: three edge vectors, an origin,
// a periodicity flag per axis and a 2D flag.
//
// Cell is a value type. Copies are independent.
type Cell struct {
	vecs   [3]r3.Vec // edge vectors (matrix columns)
	origin r3.Vec
	inv    [3]r3.Vec // rows of the inverse matrix
	pbc    [3]bool
	is2D   bool
}

// NewCell creates a cell spanned by a, b and c and anchored at origin.
func NewCell(a, b, c, origin r3.Vec, pbc [3]bool) Cell {
	cell := Cell{
		vecs:   [3]r3.Vec{a, b, c},
		origin: origin,
		pbc:    pbc,
	}
	cell.computeInverse()
	return cell
}

// NewOrthoCell creates an axis-aligned box [0,lx]×[0,ly]×[0,lz].
func NewOrthoCell(lx, ly, lz float64, pbc [3]bool) Cell {
	return NewCell(
		r3.Vec{X: lx},
		r3.Vec{Y: ly},
		r3.Vec{Z: lz},
		r3.Vec{},
		pbc,
	)
}

// Matrix returns the cell matrix. Column d is the edge vector d.
func (c Cell) Matrix() *r3.Mat {
	m := r3.NewMat(nil)
	for j, v := range c.vecs {
		m.Set(0, j, v.X)
		m.Set(1, j, v.Y)
		m.Set(2, j, v.Z)
	}
	return m
}

// Origin returns the cell origin.
func (c Cell) Origin() r3.Vec { return c.origin }

// Vector returns the edge vector along dim.
func (c Cell) Vector(dim int) r3.Vec { return c.vecs[dim] }

// IsPeriodic reports whether periodic boundary conditions apply along dim.
func (c Cell) IsPeriodic(dim int) bool { return c.pbc[dim] }

// PBC returns the three periodicity flags.
func (c Cell) PBC() [3]bool { return c.pbc }

// Is2D reports whether the cell is two-dimensional.
func (c Cell) Is2D() bool { return c.is2D }

// Set2D switches the cell to 2D mode. A 2D cell is never periodic along z.
func (c *Cell) Set2D(is2D bool) {
	c.is2D = is2D
	if is2D {
		c.pbc[2] = false
	}
	c.computeInverse()
}

// SetPBC replaces the periodicity flags.
func (c *Cell) SetPBC(pbc [3]bool) {
	c.pbc = pbc
	if c.is2D {
		c.pbc[2] = false
	}
}

// Volume3D returns the (positive) volume of the cell.
func (c Cell) Volume3D() float64 {
	return math.Abs(c.Matrix().Det())
}

// Volume2D returns the (positive) area spanned by the first two edge vectors.
func (c Cell) Volume2D() float64 {
	return r3.Norm(r3.Cross(c.vecs[0], c.vecs[1]))
}

// IsAxisAligned reports whether every edge vector is parallel to its coordinate axis.
func (c Cell) IsAxisAligned() bool {
	a, b, v := c.vecs[0], c.vecs[1], c.vecs[2]
	return a.Y == 0 && a.Z == 0 &&
		b.X == 0 && b.Z == 0 &&
		v.X == 0 && v.Y == 0
}

// ReducedToAbsolute converts a point from reduced to absolute coordinates.
func (c Cell) ReducedToAbsolute(p r3.Vec) r3.Vec {
	return r3.Add(c.origin, c.ReducedToAbsoluteVector(p))
}

// ReducedToAbsoluteVector converts a vector from reduced to absolute coordinates.
func (c Cell) ReducedToAbsoluteVector(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: c.vecs[0].X*v.X + c.vecs[1].X*v.Y + c.vecs[2].X*v.Z,
		Y: c.vecs[0].Y*v.X + c.vecs[1].Y*v.Y + c.vecs[2].Y*v.Z,
		Z: c.vecs[0].Z*v.X + c.vecs[1].Z*v.Y + c.vecs[2].Z*v.Z,
	}
}

// AbsoluteToReduced converts a point from absolute to reduced coordinates.
func (c Cell) AbsoluteToReduced(p r3.Vec) r3.Vec {
	return c.AbsoluteToReducedVector(r3.Sub(p, c.origin))
}

// AbsoluteToReducedVector converts a vector from absolute to reduced coordinates.
func (c Cell) AbsoluteToReducedVector(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r3.Dot(c.inv[0], v),
		Y: r3.Dot(c.inv[1], v),
		Z: r3.Dot(c.inv[2], v),
	}
}

// reducedComponent returns one reduced coordinate of the point p.
func (c Cell) reducedComponent(p r3.Vec, dim int) float64 {
	return r3.Dot(c.inv[dim], r3.Sub(p, c.origin))
}

// WrapPoint maps p into the primary cell image along every periodic axis.
func (c Cell) WrapPoint(p r3.Vec) r3.Vec {
	for dim := 0; dim < 3; dim++ {
		if !c.pbc[dim] {
			continue
		}
		if s := math.Floor(c.reducedComponent(p, dim)); s != 0 {
			p = r3.Sub(p, r3.Scale(s, c.vecs[dim]))
		}
	}
	return p
}

// WrapVector applies the minimum image convention to v.
func (c Cell) WrapVector(v r3.Vec) r3.Vec {
	for dim := 0; dim < 3; dim++ {
		if !c.pbc[dim] {
			continue
		}
		if s := math.Floor(r3.Dot(c.inv[dim], v) + 0.5); s != 0 {
			v = r3.Sub(v, r3.Scale(s, c.vecs[dim]))
		}
	}
	return v
}

// IsWrappedVector reports whether v is long enough to be wrapped by the
// minimum image convention along some periodic axis.
func (c Cell) IsWrappedVector(v r3.Vec) bool {
	for dim := 0; dim < 3; dim++ {
		if c.pbc[dim] && math.Abs(r3.Dot(c.inv[dim], v)) >= 0.5 {
			return true
		}
	}
	return false
}

// NormalVector returns the unit normal of the cell faces spanned by the two
// edge vectors other than dim. It points along edge vector dim.
func (c Cell) NormalVector(dim int) r3.Vec {
	n := r3.Cross(c.vecs[(dim+1)%3], c.vecs[(dim+2)%3])
	if r3.Dot(n, c.vecs[dim]) < 0 {
		return r3.Scale(-1/r3.Norm(n), n)
	}
	return r3.Unit(n)
}

// Width returns the perpendicular distance between the two faces normal to dim.
func (c Cell) Width(dim int) float64 {
	return math.Abs(r3.Dot(c.NormalVector(dim), c.vecs[dim]))
}

func (c *Cell) computeInverse() {
	c.inv = [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}

	if c.is2D {
		a, b := c.vecs[0], c.vecs[1]
		det := a.X*b.Y - b.X*a.Y
		if math.Abs(det) > volumeEpsilon {
			c.inv[0] = r3.Vec{X: b.Y / det, Y: -b.X / det}
			c.inv[1] = r3.Vec{X: -a.Y / det, Y: a.X / det}
		}
		return
	}

	var inv mat.Dense
	if err := inv.Inverse(c.Matrix()); err != nil {
		// An ill-conditioned matrix still yields a usable inverse.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return
		}
	}
	for i := 0; i < 3; i++ {
		c.inv[i] = r3.Vec{X: inv.At(i, 0), Y: inv.At(i, 1), Z: inv.At(i, 2)}
	}
}

// withFlatZ returns the working copy used for 2D tree construction: z is not
// periodic and the third edge vector is replaced by a thin slab along z.
func (c Cell) withFlatZ() Cell {
	c.is2D = false
	c.pbc[2] = false
	c.vecs[2] = r3.Vec{Z: 0.01}
	c.computeInverse()
	return c
}
