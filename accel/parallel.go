package accel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps per-goroutine work above scheduling overhead.
const minChunk = 256

// ParallelFor splits [0, n) into contiguous ranges and runs fn on each range
// concurrently. Callers must only write to indices derived from their range.
// The first error cancels nothing already running but is returned after all
// ranges finish.
//
// Arguments:
//   - workers: Maximum concurrent ranges; <= 0 uses runtime.NumCPU().
//   - n: Number of items.
//   - fn: Work for the half-open range [lo, hi).
//
// Returns:
//   - error: The first error returned by fn.
func ParallelFor(workers, n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	if chunk >= n {
		return fn(0, n)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
