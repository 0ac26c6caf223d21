package nnfind

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// periodicImages returns the lattice translations M·(ix,iy,iz) with each
// index in {-1,0,1} along periodic axes and 0 elsewhere, ordered by length.
// The sort is stable, so the zero vector always comes first and the order is
// the same for every build of the same cell.
func periodicImages(cell Cell) []r3.Vec {
	var n [3]int
	for dim := 0; dim < 3; dim++ {
		if cell.IsPeriodic(dim) {
			n[dim] = 1
		}
	}

	images := make([]r3.Vec, 0, (2*n[0]+1)*(2*n[1]+1)*(2*n[2]+1))
	for iz := -n[2]; iz <= n[2]; iz++ {
		for iy := -n[1]; iy <= n[1]; iy++ {
			for ix := -n[0]; ix <= n[0]; ix++ {
				images = append(images, cell.ReducedToAbsoluteVector(r3.Vec{
					X: float64(ix),
					Y: float64(iy),
					Z: float64(iz),
				}))
			}
		}
	}

	slices.SortStableFunc(images, func(a, b r3.Vec) int {
		return cmp.Compare(r3.Norm2(a), r3.Norm2(b))
	})
	return images
}

// maxReliableDistance is the smallest perpendicular cell width over the
// periodic axes, or +Inf if no axis is periodic. A single layer of images
// finds every neighbor closer than this distance.
func maxReliableDistance(cell Cell) float64 {
	d := math.Inf(1)
	for dim := 0; dim < 3; dim++ {
		if cell.IsPeriodic(dim) {
			d = math.Min(d, cell.Width(dim))
		}
	}
	return d
}
