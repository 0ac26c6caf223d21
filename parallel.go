package nnfind

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// parallelChunk is the number of consecutive particles a worker claims at once.
const parallelChunk = 256

// ForEachParticle runs a neighbor query for every particle of f and passes
// the result to fn. Work is spread over workers goroutines (GOMAXPROCS if
// workers <= 0), each owning one Query, so fn must be safe for concurrent use
// and must not retain q or q.Results() after it returns.
//
// Particles are handed out in contiguous ranges. The first error returned by
// fn, or the cancellation of ctx, stops all workers; that error is returned.
func ForEachParticle(ctx context.Context, f *Finder, workers int, fn func(index int, q *Query) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := f.NumParticles()
	chunks := (n + parallelChunk - 1) / parallelChunk
	workers = max(min(workers, chunks), 1)

	start := time.Now()
	var next, done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			q := f.NewQuery()
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := int(next.Add(1) - 1)
				if c >= chunks {
					return nil
				}
				lo := c * parallelChunk
				hi := min(lo+parallelChunk, n)
				for i := lo; i < hi; i++ {
					q.FindNeighbors(i)
					if err := fn(i, q); err != nil {
						return err
					}
					done.Add(1)
				}
			}
		})
	}

	err := g.Wait()

	elapsed := time.Since(start)
	f.metrics.RecordParallelQueries(int(done.Load()), elapsed, err)
	f.logger.LogParallel(ctx, int(done.Load()), workers, elapsed, err)

	return err
}
