package nnfind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/nnfind/testutil"
)

func latticeOf(c Cell) testutil.Lattice {
	return testutil.Lattice{
		Vectors: [3]r3.Vec{c.Vector(0), c.Vector(1), c.Vector(2)},
		Origin:  c.Origin(),
		PBC:     c.PBC(),
	}
}

func mustBuild(t testing.TB, pts []r3.Vec, cell Cell, opts ...Option) *Finder {
	t.Helper()
	f, err := Build(context.Background(), VecPositions(pts), cell, opts...)
	require.NoError(t, err)
	require.NotNil(t, f)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// wrapped returns the positions as stored by the finder.
func wrapped(f *Finder) []r3.Vec {
	out := make([]r3.Vec, f.NumParticles())
	for i := range out {
		out[i] = f.ParticlePos(i)
	}
	return out
}

func indicesOf(ns []Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Index
	}
	return out
}

func truthIndices(ns []testutil.Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Index
	}
	return out
}

// assertMatches compares a query result with brute-force ground truth.
func assertMatches(t *testing.T, want []testutil.Neighbor, got []Neighbor) {
	t.Helper()
	require.Len(t, got, len(want))
	assert.ElementsMatch(t, truthIndices(want), indicesOf(got))
	for i := range want {
		assert.InDelta(t, want[i].DistanceSq, got[i].DistanceSq, 1e-9, "rank %d", i)
	}
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceSq, got[i].DistanceSq)
	}
	for _, n := range got {
		assert.InDelta(t, n.DistanceSq, r3.Norm2(n.Delta), 1e-9)
	}
}
