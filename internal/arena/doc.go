// Package arena provides typed slab allocation for tree nodes and atom records.
//
// # Features
//
//   - Chunked storage: growth never moves existing elements
//   - int32 handles instead of pointers (Nil = -1)
//   - Optional memory accounting through a MemoryAcquirer
//   - Bulk release only (Free), no per-element free
//
// # Concurrency Model
//
// A Slab has a single writer. Alloc and Free must not run concurrently
// with anything else. Once the owner stops allocating, Get is safe to call from
// any number of goroutines because chunks are never moved or reallocated.
//
// # Safety
//
// Allocation failures are returned as errors. Get does not validate handles
// beyond ordinary slice bounds checks.
package arena
