package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrent fetches or decodes. A nil Pool
// runs everything inline without a limit.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a pool admitting n concurrent jobs (at least 1).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Do runs fn once a slot is free. It returns ctx.Err() if ctx ends while
// waiting.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Size returns the pool's concurrency.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}
