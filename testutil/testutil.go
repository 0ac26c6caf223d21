package testutil

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Lattice describes a simulation cell independently of the package under test.
type Lattice struct {
	Vectors [3]r3.Vec // edge vectors
	Origin  r3.Vec
	PBC     [3]bool
}

// OrthoLattice returns the axis-aligned box [0,lx]×[0,ly]×[0,lz].
func OrthoLattice(lx, ly, lz float64, pbc [3]bool) Lattice {
	return Lattice{
		Vectors: [3]r3.Vec{{X: lx}, {Y: ly}, {Z: lz}},
		PBC:     pbc,
	}
}

// ReducedToAbsolute maps reduced coordinates to a point.
func (l Lattice) ReducedToAbsolute(s r3.Vec) r3.Vec {
	p := l.Origin
	p = r3.Add(p, r3.Scale(s.X, l.Vectors[0]))
	p = r3.Add(p, r3.Scale(s.Y, l.Vectors[1]))
	p = r3.Add(p, r3.Scale(s.Z, l.Vectors[2]))
	return p
}

// Translation returns the lattice vector n0·a + n1·b + n2·c.
func (l Lattice) Translation(n0, n1, n2 int) r3.Vec {
	return r3.Sub(l.ReducedToAbsolute(r3.Vec{X: float64(n0), Y: float64(n1), Z: float64(n2)}), l.Origin)
}

// UniformPoints generates num points uniformly distributed inside the cell.
func (r *RNG) UniformPoints(num int, l Lattice) []r3.Vec {
	r.mu.Lock()
	defer r.mu.Unlock()

	pts := make([]r3.Vec, num)
	for i := range pts {
		pts[i] = l.ReducedToAbsolute(r3.Vec{
			X: r.rand.Float64(),
			Y: r.rand.Float64(),
			Z: r.rand.Float64(),
		})
	}
	return pts
}

// PlanarPoints generates num points inside the cell with zero reduced z.
func (r *RNG) PlanarPoints(num int, l Lattice) []r3.Vec {
	r.mu.Lock()
	defer r.mu.Unlock()

	pts := make([]r3.Vec, num)
	for i := range pts {
		pts[i] = l.ReducedToAbsolute(r3.Vec{
			X: r.rand.Float64(),
			Y: r.rand.Float64(),
		})
	}
	return pts
}

// ClusteredPoints generates points around random centers inside the cell.
// spread is the standard deviation of the Gaussian noise in absolute units.
// Points may fall outside the cell.
func (r *RNG) ClusteredPoints(num int, l Lattice, clusters int, spread float64) []r3.Vec {
	centers := r.UniformPoints(clusters, l)

	r.mu.Lock()
	defer r.mu.Unlock()

	pts := make([]r3.Vec, num)
	for i := range pts {
		c := centers[i%clusters]
		pts[i] = r3.Vec{
			X: c.X + r.rand.NormFloat64()*spread,
			Y: c.Y + r.rand.NormFloat64()*spread,
			Z: c.Z + r.rand.NormFloat64()*spread,
		}
	}
	return pts
}

// Mask returns a random selection mask with the given fraction of true entries.
func (r *RNG) Mask(n int, fraction float64) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	mask := make([]bool, n)
	for i := range mask {
		mask[i] = r.rand.Float64() < fraction
	}
	return mask
}

// Neighbor is one brute-force result.
type Neighbor struct {
	Index      int
	DistanceSq float64
	Delta      r3.Vec
}

// KNNQuery configures BruteForceKNN.
type KNNQuery struct {
	Point   r3.Vec
	K       int
	Lattice Lattice

	// Shells is the number of image layers searched along each periodic
	// axis. Zero selects 2.
	Shells int

	// AllImages keeps every image of a particle instead of only the nearest one.
	AllImages bool

	// Selected limits the candidates. Nil selects every point.
	Selected []bool

	// Exclude drops candidates. Nil keeps everything.
	Exclude func(index int, distSq float64) bool
}

// ExcludeSelf drops particle i at zero distance.
func ExcludeSelf(i int) func(int, float64) bool {
	return func(index int, distSq float64) bool {
		return index == i && distSq == 0
	}
}

// ExcludeZero drops every candidate at zero distance.
func ExcludeZero(_ int, distSq float64) bool { return distSq == 0 }

// BruteForceKNN returns the k nearest neighbors of q.Point among points by
// checking every point against every lattice image. Results are sorted by
// distance, then by index.
func BruteForceKNN(points []r3.Vec, q KNNQuery) []Neighbor {
	shells := q.Shells
	if shells <= 0 {
		shells = 2
	}
	var n [3]int
	for d := 0; d < 3; d++ {
		if q.Lattice.PBC[d] {
			n[d] = shells
		}
	}

	var out []Neighbor
	for i, p := range points {
		if q.Selected != nil && !q.Selected[i] {
			continue
		}
		best := Neighbor{Index: -1, DistanceSq: math.Inf(1)}
		for iz := -n[2]; iz <= n[2]; iz++ {
			for iy := -n[1]; iy <= n[1]; iy++ {
				for ix := -n[0]; ix <= n[0]; ix++ {
					delta := r3.Sub(r3.Add(p, q.Lattice.Translation(ix, iy, iz)), q.Point)
					d := r3.Norm2(delta)
					if q.Exclude != nil && q.Exclude(i, d) {
						continue
					}
					cand := Neighbor{Index: i, DistanceSq: d, Delta: delta}
					if q.AllImages {
						out = append(out, cand)
					} else if d < best.DistanceSq {
						best = cand
					}
				}
			}
		}
		if !q.AllImages && best.Index >= 0 {
			out = append(out, best)
		}
	}

	slices.SortFunc(out, func(a, b Neighbor) int {
		if c := cmp.Compare(a.DistanceSq, b.DistanceSq); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	if len(out) > q.K {
		out = out[:q.K]
	}
	return out
}

// Distances returns the squared distances of ns.
func Distances(ns []Neighbor) []float64 {
	out := make([]float64, len(ns))
	for i, n := range ns {
		out[i] = n.DistanceSq
	}
	return out
}

// ComputeRecall computes recall@k by comparing result indices against ground truth.
func ComputeRecall(groundTruth []Neighbor, approximate []int) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	truth := make(map[int]struct{}, len(groundTruth))
	for _, n := range groundTruth {
		truth[n.Index] = struct{}{}
	}

	hits := 0
	for _, idx := range approximate {
		if _, ok := truth[idx]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(groundTruth))
}
