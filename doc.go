// Package nnfind finds the k nearest neighbors of particles in a simulation
// cell with periodic boundary conditions.
//
// A Finder is built once per snapshot of particle positions. It stores the
// selected particles in a binary space-partitioning tree whose nodes are
// regions of the (possibly sheared) cell, and answers nearest-neighbor queries
// by searching the tree once per periodic image of the query point.
//
// # Quick Start
//
//	cell := nnfind.NewOrthoCell(10, 10, 10, [3]bool{true, true, true})
//	finder, _ := nnfind.Build(ctx, nnfind.VecPositions(points), cell,
//	    nnfind.WithNumNeighbors(12))
//	defer finder.Close()
//
//	q := finder.NewQuery()
//	q.FindNeighbors(0)
//	for _, n := range q.Results() {
//	    fmt.Println(n.Index, n.Distance(), n.Delta)
//	}
//
// # Queries
//
// A Query owns a fixed-capacity result buffer and performs no allocations
// after it is created. Queries are not safe for concurrent use, but any
// number of them may run against the same Finder at once:
//
//	err := nnfind.ForEachParticle(ctx, finder, 0, func(i int, q *nnfind.Query) error {
//	    coordination[i] = len(q.Results())
//	    return nil
//	})
//
// Results are sorted by ascending distance. By default a particle appears at
// most once per result list, at its nearest periodic image; WithMultipleImages
// allows several images of the same particle.
//
// # Periodic Images
//
// Only the 27 (or fewer) images adjacent to the primary cell are searched.
// Results are exact as long as the k-th neighbor is closer than
// Finder.MaxReliableDistance, the smallest perpendicular width of the cell
// along a periodic axis.
//
// # Key Features
//
//   - Arbitrary triclinic cells, mixed periodic and open boundaries, 2D systems
//   - Selection masks (dense bitset or sparse roaring bitmap)
//   - Cancellation via context and throttled progress reporting
//   - Memory budget for tree storage via WithMemoryLimit
//   - Structured logging (slog) and pluggable metrics (see metrics/prometheus)
package nnfind
