package queue

import (
	"cmp"
	"slices"
)

// Item is a candidate held by a Bounded queue.
// Value-based: no pointers, so the backing slice can be reused across queries.
type Item[T any] struct {
	Distance float64 // Distance is the priority of the item (smaller is better).
	ID       int     // ID identifies the candidate for per-ID dedupe.
	Value    T       // Value is an arbitrary payload.
}

// Bounded keeps the `capacity` items with the smallest Distance.
//
// While collecting it is a max-heap (worst candidate on top), so the current
// pruning bound is available in O(1) and an insert costs O(log k). Sort turns
// the backing slice into ascending order once collection is finished.
//
// With distinct set, at most one item per ID is retained: a second item with
// the same ID replaces the first only if it is strictly closer. The ID lookup
// is a linear scan, which is cheap for the small k this queue is sized for.
type Bounded[T any] struct {
	items    []Item[T]
	capacity int
	distinct bool
}

// NewBounded creates a queue that holds at most capacity items.
// capacity must be positive.
func NewBounded[T any](capacity int, distinct bool) *Bounded[T] {
	return &Bounded[T]{
		items:    make([]Item[T], 0, capacity),
		capacity: capacity,
		distinct: distinct,
	}
}

// Capacity returns the maximum number of items.
func (b *Bounded[T]) Capacity() int { return b.capacity }

// Len returns the number of items.
func (b *Bounded[T]) Len() int { return len(b.items) }

// Full reports whether the queue holds Capacity items.
func (b *Bounded[T]) Full() bool { return len(b.items) == b.capacity }

// Top returns the worst (largest) distance currently held.
// Only meaningful while collecting and when Len() > 0.
func (b *Bounded[T]) Top() float64 { return b.items[0].Distance }

// Accepts reports whether an item at distance d could enter the queue.
func (b *Bounded[T]) Accepts(d float64) bool {
	return len(b.items) < b.capacity || d < b.items[0].Distance
}

// Insert offers an item. It returns true if the item was stored.
func (b *Bounded[T]) Insert(it Item[T]) bool {
	if b.distinct {
		for i := range b.items {
			if b.items[i].ID != it.ID {
				continue
			}
			if it.Distance >= b.items[i].Distance {
				return false
			}
			// Smaller key in a max-heap only ever moves down.
			b.items[i] = it
			b.siftDown(i)
			return true
		}
	}

	if len(b.items) < b.capacity {
		b.items = append(b.items, it)
		b.siftUp(len(b.items) - 1)
		return true
	}

	if it.Distance < b.items[0].Distance {
		b.items[0] = it
		b.siftDown(0)
		return true
	}
	return false
}

// Sort orders the items by ascending distance. Equal distances keep their
// relative heap order, which is deterministic for a given insert sequence.
// After Sort the queue must be Reset before further inserts.
func (b *Bounded[T]) Sort() {
	slices.SortStableFunc(b.items, func(x, y Item[T]) int {
		return cmp.Compare(x.Distance, y.Distance)
	})
}

// Items returns the backing slice. The slice is only valid until the next
// Insert or Reset.
func (b *Bounded[T]) Items() []Item[T] { return b.items }

// Reset clears the queue for reuse without releasing its storage.
func (b *Bounded[T]) Reset() {
	b.items = b.items[:0]
}

func (b *Bounded[T]) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if b.items[i].Distance <= b.items[p].Distance {
			return
		}
		b.items[i], b.items[p] = b.items[p], b.items[i]
		i = p
	}
}

func (b *Bounded[T]) siftDown(i int) {
	n := len(b.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && b.items[r].Distance > b.items[l].Distance {
			best = r
		}
		if b.items[best].Distance <= b.items[i].Distance {
			return
		}
		b.items[i], b.items[best] = b.items[best], b.items[i]
		i = best
	}
}
