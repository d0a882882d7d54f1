package blendshape

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of elements each worker handles at once.
const DefaultChunkSize = 4096

// Parallelism configures the chunked fan-out of the per-vertex loops.
// Zero values select defaults.
type Parallelism struct {
	Workers   int
	ChunkSize int
}

func (p Parallelism) normalized() Parallelism {
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	return p
}

// forEachChunk calls fn for consecutive [lo,hi) ranges covering [0,n).
// Ranges are disjoint and fn must only write inside its own range. Small
// inputs run on the calling goroutine. Chunks not yet started when ctx is
// cancelled are skipped.
func forEachChunk(ctx context.Context, n int, par Parallelism, fn func(lo, hi int)) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}
	par = par.normalized()

	if n <= par.ChunkSize || par.Workers == 1 {
		fn(0, n)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par.Workers)
	for lo := 0; lo < n; lo += par.ChunkSize {
		lo, hi := lo, min(lo+par.ChunkSize, n)
		g.Go(func() error {
			if err := checkpoint(gctx); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}
