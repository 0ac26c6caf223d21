package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func distances[T any](items []Item[T]) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it.Distance
	}
	return out
}

func TestBounded(t *testing.T) {
	t.Run("Fill", func(t *testing.T) {
		b := NewBounded[struct{}](3, false)
		assert.Equal(t, 3, b.Capacity())
		assert.True(t, b.Accepts(100))

		b.Insert(Item[struct{}]{Distance: 10, ID: 1})
		b.Insert(Item[struct{}]{Distance: 20, ID: 2})
		assert.False(t, b.Full())
		b.Insert(Item[struct{}]{Distance: 30, ID: 3})
		assert.True(t, b.Full())
		assert.Equal(t, 30.0, b.Top())
	})

	t.Run("EvictsWorst", func(t *testing.T) {
		b := NewBounded[struct{}](3, false)
		for i, d := range []float64{10, 20, 30} {
			b.Insert(Item[struct{}]{Distance: d, ID: i})
		}

		assert.True(t, b.Insert(Item[struct{}]{Distance: 5, ID: 4}))
		assert.Equal(t, 3, b.Len())
		assert.Equal(t, 20.0, b.Top())

		// Worse candidate is ignored.
		assert.False(t, b.Insert(Item[struct{}]{Distance: 40, ID: 5}))
		// Equal to the worst is not strictly better.
		assert.False(t, b.Insert(Item[struct{}]{Distance: 20, ID: 6}))
		assert.False(t, b.Accepts(20))
		assert.True(t, b.Accepts(19))

		b.Sort()
		assert.Equal(t, []float64{5, 10, 20}, distances(b.Items()))
	})

	t.Run("Distinct", func(t *testing.T) {
		b := NewBounded[string](4, true)
		b.Insert(Item[string]{Distance: 9, ID: 7, Value: "far image"})
		b.Insert(Item[string]{Distance: 3, ID: 8})

		// A closer image of ID 7 replaces the stored one.
		assert.True(t, b.Insert(Item[string]{Distance: 1, ID: 7, Value: "near image"}))
		// A farther (or equal) image does not.
		assert.False(t, b.Insert(Item[string]{Distance: 1, ID: 7, Value: "tie"}))
		// ID 8 is stored at 3, so 2 is strictly closer and replaces it.
		assert.True(t, b.Insert(Item[string]{Distance: 2, ID: 8}))
		assert.False(t, b.Insert(Item[string]{Distance: 2, ID: 8}))
		assert.False(t, b.Insert(Item[string]{Distance: 2.5, ID: 8}))

		require.Equal(t, 2, b.Len())
		b.Sort()
		assert.Equal(t, 7, b.Items()[0].ID)
		assert.Equal(t, "near image", b.Items()[0].Value)
		assert.Equal(t, 8, b.Items()[1].ID)
		assert.Equal(t, 2.0, b.Items()[1].Distance)
	})

	t.Run("NotDistinctKeepsDuplicates", func(t *testing.T) {
		b := NewBounded[struct{}](4, false)
		b.Insert(Item[struct{}]{Distance: 9, ID: 7})
		b.Insert(Item[struct{}]{Distance: 1, ID: 7})
		assert.Equal(t, 2, b.Len())
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBounded[struct{}](2, false)
		b.Insert(Item[struct{}]{Distance: 1})
		b.Sort()
		b.Reset()
		assert.Equal(t, 0, b.Len())
		assert.Equal(t, 2, cap(b.Items()))
	})

	t.Run("Stress", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for _, distinct := range []bool{false, true} {
			const k = 12
			b := NewBounded[struct{}](k, distinct)
			best := map[int]float64{}
			var all []float64

			for i := 0; i < 2000; i++ {
				id := rng.Intn(300)
				d := rng.Float64()
				b.Insert(Item[struct{}]{Distance: d, ID: id})
				if distinct {
					if old, ok := best[id]; !ok || d < old {
						best[id] = d
					}
				} else {
					all = append(all, d)
				}
			}

			if distinct {
				for _, d := range best {
					all = append(all, d)
				}
			}
			sort.Float64s(all)

			b.Sort()
			assert.Equal(t, all[:k], distances(b.Items()), "distinct=%v", distinct)
		}
	})

	t.Run("ZeroAllocations", func(t *testing.T) {
		b := NewBounded[[3]float64](16, true)
		allocs := testing.AllocsPerRun(100, func() {
			b.Reset()
			for i := 0; i < 100; i++ {
				b.Insert(Item[[3]float64]{Distance: float64(100 - i), ID: i % 20})
			}
			b.Sort()
		})
		assert.Zero(t, allocs)
	})
}
