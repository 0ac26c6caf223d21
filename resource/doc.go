// Package resource implements a small controller for process-wide limits.
//
// It manages two resources:
//
//   - Memory: bytes reserved for tree nodes and atom records (non-blocking, fail-fast)
//   - Build slots: the number of tree constructions allowed to run at once
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for reporting. AcquireMemory never blocks: if the reservation does
// not fit it returns ErrMemoryLimitExceeded and the caller aborts.
//
// # Nil Safety
//
// All methods accept a nil *Controller and then behave as "unlimited".
package resource
