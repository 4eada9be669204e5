// Package singleflight coalesces concurrent work for the same key.
package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once per flight. Other concurrent
// callers wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key starts the flight. fn runs on its own
//     goroutine with a context detached from any single caller.
//   - Every caller waiting on a flight is counted. A caller whose ctx is
//     cancelled only detaches itself; the flight's context is cancelled when
//     the last waiter detaches.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
//   - A flight is forgotten before its result is published, so a caller that
//     arrives afterwards starts a fresh flight.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int // guarded by Group.mu
	cancel  context.CancelFunc
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result; shared reports whether this caller joined an
// existing flight. If ctx is cancelled the caller returns ctx.Err().
//
// fn receives a context that keeps ctx's values but is cancelled only when
// every waiter has gone away.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	c, ok := g.m[key]
	if ok {
		c.waiters++
		shared = true
	} else {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{done: make(chan struct{}), waiters: 1, cancel: cancel}
		g.m[key] = c
		go g.run(runCtx, key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err, shared
	case <-ctx.Done():
		g.leave(key, c)
		var zero V
		return zero, ctx.Err(), shared
	}
}

// Len returns the number of flights in progress.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[K, V]) run(ctx context.Context, key K, c *call[V], fn func(context.Context) (V, error)) {
	defer c.cancel()
	v, err := fn(ctx)

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()

	c.val, c.err = v, err
	close(c.done)
}

// leave detaches one waiter; the last one cancels the flight.
func (g *Group[K, V]) leave(key K, c *call[V]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	if g.m[key] == c {
		delete(g.m, key)
	}
	c.cancel()
}
