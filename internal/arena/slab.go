package arena

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"unsafe"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrMaxChunksExceeded is returned when the slab exceeds the maximum number of chunks.
	ErrMaxChunksExceeded = errors.New("arena: max chunks exceeded")
)

const (
	// DefaultChunkSize is the default number of elements per chunk.
	DefaultChunkSize = 4096
	// MaxChunks limits the number of chunks so that every Handle fits in an int32.
	MaxChunks = 1 << 16
)

// Handle addresses one element of a Slab.
type Handle int32

// Nil is the Handle that refers to no element.
const Nil Handle = -1

// Valid reports whether h refers to an element.
func (h Handle) Valid() bool { return h >= 0 }

// Stats tracks slab memory usage metrics.
//
// Note on semantics:
//   - BytesReserved: memory held by all chunks
//   - BytesUsed: memory covered by allocated elements
//   - ActiveChunks: number of chunks currently held
//   - TotalAllocs: cumulative allocation count
type Stats struct {
	ChunksAllocated uint64 // Historical: total chunks ever created
	BytesReserved   uint64
	BytesUsed       uint64
	ActiveChunks    uint64
	TotalAllocs     uint64 // Historical: total allocations
}

type config struct {
	acquirer MemoryAcquirer
}

// Option is a configuration option for Slab.
type Option func(*config)

// WithMemoryAcquirer sets the memory acquirer charged for every new chunk.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(c *config) {
		c.acquirer = acquirer
	}
}

// Slab is a pool of T values addressed by Handle.
type Slab[T any] struct {
	chunkSize int
	chunkBits int
	chunkMask int
	elemSize  int64
	chunks    [][]T
	n         int
	stats     Stats
	acquirer  MemoryAcquirer
}

// New creates a new Slab. chunkSize is rounded up to the next power of two;
// values <= 0 select DefaultChunkSize. No memory is reserved until the first Alloc.
func New[T any](chunkSize int, opts ...Option) *Slab[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	// Round up to next power of 2 for shift/mask addressing.
	chunkBits := bits.Len(uint(chunkSize - 1)) //nolint:gosec // chunkSize > 0
	chunkSize = 1 << chunkBits

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	return &Slab[T]{
		chunkSize: chunkSize,
		chunkBits: chunkBits,
		chunkMask: chunkSize - 1,
		elemSize:  int64(unsafe.Sizeof(zero)),
		acquirer:  cfg.acquirer,
	}
}

func (s *Slab[T]) allocateChunk() error {
	if len(s.chunks) >= MaxChunks || (len(s.chunks)+1)*s.chunkSize-1 > math.MaxInt32 {
		return ErrMaxChunksExceeded
	}

	chunkBytes := s.elemSize * int64(s.chunkSize)
	if s.acquirer != nil {
		if err := s.acquirer.AcquireMemory(chunkBytes); err != nil {
			return fmt.Errorf("arena: reserve chunk %d: %w", len(s.chunks), err)
		}
	}

	s.chunks = append(s.chunks, make([]T, s.chunkSize))

	s.stats.ChunksAllocated++
	s.stats.ActiveChunks++
	s.stats.BytesReserved += uint64(chunkBytes) //nolint:gosec // non-negative

	return nil
}

// Alloc returns a zeroed element and its handle.
func (s *Slab[T]) Alloc() (Handle, *T, error) {
	if s.n == len(s.chunks)*s.chunkSize {
		if err := s.allocateChunk(); err != nil {
			return Nil, nil, err
		}
	}

	h := Handle(s.n) //nolint:gosec // bounded by allocateChunk
	p := &s.chunks[s.n>>s.chunkBits][s.n&s.chunkMask]
	s.n++

	s.stats.TotalAllocs++
	s.stats.BytesUsed += uint64(s.elemSize) //nolint:gosec // non-negative

	return h, p, nil
}

// Get returns a pointer to the element addressed by h.
// It performs no validation beyond the slice bounds checks.
func (s *Slab[T]) Get(h Handle) *T {
	i := int(h)
	return &s.chunks[i>>s.chunkBits][i&s.chunkMask]
}

// Len returns the number of allocated elements.
func (s *Slab[T]) Len() int { return s.n }

// Stats returns the current slab statistics.
func (s *Slab[T]) Stats() Stats { return s.stats }

// Free releases all chunks. The slab stays usable and grows again on the next Alloc.
func (s *Slab[T]) Free() {
	if s.acquirer != nil && len(s.chunks) > 0 {
		s.acquirer.ReleaseMemory(s.elemSize * int64(s.chunkSize) * int64(len(s.chunks)))
	}
	s.chunks = nil
	s.n = 0

	s.stats.ActiveChunks = 0
	s.stats.BytesReserved = 0
	s.stats.BytesUsed = 0
}
