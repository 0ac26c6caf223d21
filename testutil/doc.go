// Package testutil provides testing utilities for nnfind.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random particle configurations and
// computing exact nearest neighbors by brute force.
//
// # Random Positions
//
//	rng := testutil.NewRNG(seed)
//	lat := testutil.OrthoLattice(10, 10, 10, [3]bool{true, true, true})
//	pts := rng.UniformPoints(1000, lat)  // uniform inside the cell
//	pts = rng.ClusteredPoints(1000, lat, 8, 0.2)
//
// # Exact Search (Ground Truth)
//
//	want := testutil.BruteForceKNN(pts, testutil.KNNQuery{
//	    Point:   pts[0],
//	    K:       12,
//	    Lattice: lat,
//	    Exclude: testutil.ExcludeSelf(0),
//	})
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(want, got)
package testutil
