package nnfind

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Positions is a read-only source of particle coordinates.
// The source must not change while a Build that reads it is running.
type Positions interface {
	// Len returns the number of particles.
	Len() int
	// Position returns the absolute coordinates of particle i.
	Position(i int) r3.Vec
}

// VecPositions adapts a slice of vectors.
type VecPositions []r3.Vec

// Len implements Positions.
func (p VecPositions) Len() int { return len(p) }

// Position implements Positions.
func (p VecPositions) Position(i int) r3.Vec { return p[i] }

// FlatPositions adapts a flat row-major buffer (x0, y0, z0, x1, y1, z1, ...).
type FlatPositions []float64

// NewFlatPositions validates that data holds whole triples.
func NewFlatPositions(data []float64) (FlatPositions, error) {
	if len(data)%3 != 0 {
		return nil, fmt.Errorf("nnfind: flat positions length %d is not a multiple of 3", len(data))
	}
	return FlatPositions(data), nil
}

// Len implements Positions.
func (p FlatPositions) Len() int { return len(p) / 3 }

// Position implements Positions.
func (p FlatPositions) Position(i int) r3.Vec {
	j := 3 * i
	return r3.Vec{X: p[j], Y: p[j+1], Z: p[j+2]}
}
