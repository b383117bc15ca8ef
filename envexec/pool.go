package envexec

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of commands running at the same time.
// Callers over the bound queue until a slot is free or ctx is done.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
}

// NewPool creates a pool with size runner slots
func NewPool(size int) *Pool {
	size = max(size, 1)
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Run waits for a slot and runs c
func (p *Pool) Run(ctx context.Context, c *Cmd) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, context.Cause(ctx)
	}
	defer p.sem.Release(1)

	p.active.Add(1)
	defer p.active.Add(-1)
	return Run(ctx, c)
}

// Size returns the number of runner slots
func (p *Pool) Size() int {
	return p.size
}

// Active returns the number of commands currently running
func (p *Pool) Active() int {
	return int(p.active.Load())
}
