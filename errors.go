package nnfind

import (
	"errors"
	"fmt"

	"github.com/hupe1980/nnfind/internal/arena"
	"github.com/hupe1980/nnfind/resource"
)

var (
	// ErrCanceled is returned when a build was canceled through its context.
	ErrCanceled = errors.New("nnfind: build canceled")

	// ErrInvalidK is returned when the neighbor count is not positive.
	ErrInvalidK = errors.New("nnfind: k must be positive")

	// ErrInvalidBucketSize is returned when the leaf bucket size is not positive.
	ErrInvalidBucketSize = errors.New("nnfind: bucket size must be positive")

	// ErrDegenerateCell is returned for cells with (near) zero volume.
	ErrDegenerateCell = errors.New("nnfind: simulation cell is degenerate")

	// ErrSelectionLength is returned when a selection covers fewer particles than the position source.
	ErrSelectionLength = errors.New("nnfind: selection shorter than positions")

	// ErrMemoryLimitExceeded is returned when tree storage would exceed the configured memory limit.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded

	// ErrMaxChunksExceeded is returned when the tree storage runs out of addressable chunks.
	ErrMaxChunksExceeded = arena.ErrMaxChunksExceeded
)

// BuildError reports where a build stopped.
//
// The underlying error can be accessed via errors.Unwrap, errors.Is and errors.As.
type BuildError struct {
	Stage    string // "validate", "acquire", "insert" or "finalize"
	Particle int    // index of the particle being processed, -1 if none
	cause    error
}

func (e *BuildError) Error() string {
	if e.Particle >= 0 {
		return fmt.Sprintf("nnfind: build failed at %s (particle %d): %v", e.Stage, e.Particle, e.cause)
	}
	return fmt.Sprintf("nnfind: build failed at %s: %v", e.Stage, e.cause)
}

func (e *BuildError) Unwrap() error { return e.cause }

func newBuildError(stage string, particle int, cause error) *BuildError {
	return &BuildError{Stage: stage, Particle: particle, cause: cause}
}

// canceledError joins ErrCanceled with the context's own error.
func canceledError(ctxErr error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
}
