// Package workers provides the fixed-size pool that batch jobs (definition
// hashing, indexing, typechecking) run on. The pool has no queue of its
// own; each batch multiplexes its jobs over the pool's width and waits for
// completion, so the event loop never observes a partially finished batch.
package workers

import (
	"sync"
)

// Pool is a fixed-width worker pool.
type Pool struct {
	size int
}

// New creates a pool of the given width. Widths below 1 clamp to 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

// Size returns the pool width.
func (p *Pool) Size() int {
	return p.size
}

// Run executes jobs 0..n-1 over the pool and returns when all have
// finished. Jobs are claimed from a shared feed, so completion order is
// arbitrary; callers aggregate results by job index for determinism.
func (p *Pool) Run(n int, job func(i int)) {
	if n <= 0 {
		return
	}
	width := p.size
	if width > n {
		width = n
	}

	feed := make(chan int, n)
	for i := 0; i < n; i++ {
		feed <- i
	}
	close(feed)

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				job(i)
			}
		}()
	}
	wg.Wait()
}
