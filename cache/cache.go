package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/imgcache/internal/singleflight"
	"github.com/IvanBrykalov/imgcache/internal/util"
	"github.com/IvanBrykalov/imgcache/policy"
	"github.com/IvanBrykalov/imgcache/policy/lru"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errors.New("cache: no Loader provided")

// cache is a size-bounded in-memory KV store with a pluggable eviction policy.
// One mutex guards the map, the list and the size bookkeeping; Get takes it
// too because it reorders the list.
type cache[K comparable, V comparable] struct {
	// ---- guarded by mu ----
	mu         sync.Mutex
	m          map[K]*node[K, V]
	head       *node[K, V] // MRU
	tail       *node[K, V] // LRU
	len        int
	size       int64
	maxSize    int64
	valueLimit int64
	pol        policy.ListPolicy[K, V]
	// stored is the node written by the Put in progress; its own trim
	// pass treats it as pinned.
	stored *node[K, V]

	closed atomic.Bool
	opt    Options[K, V]
	log    *slog.Logger

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options.
// It panics if MaxSize is not positive.
func New[K comparable, V comparable](opt Options[K, V]) Cache[K, V] {
	if opt.MaxSize <= 0 {
		panic("MaxSize must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}

	c := &cache[K, V]{
		m:       make(map[K]*node[K, V]),
		maxSize: opt.MaxSize,
		opt:     opt,
		log:     lg.With(slog.String("cache", "memory")),
	}
	c.valueLimit = c.limitFor(opt.MaxSize)
	c.pol = opt.Policy.New(listHooks[K, V]{c: c})
	return c
}

// ---- Cache[K,V] implementation ----

// Get returns the value for k and a presence flag.
// On hit, the entry is promoted according to the active policy.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	c.mu.Lock()
	n, ok := c.m[k]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	c.pol.OnGet(n)
	v := n.val
	c.mu.Unlock()

	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return v, true
}

// Put inserts or replaces k→v and evicts down to MaxSize. The stored value
// is never its own eviction victim: when only pinned entries remain the
// cache exceeds MaxSize until a later Put or Trim.
func (c *cache[K, V]) Put(k K, v V) PutStatus {
	if c.closed.Load() {
		return PutClosed
	}
	cost := c.costOf(v)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cost > c.valueLimit {
		c.log.Debug("value exceeds limit, not cached",
			slog.Int64("cost", cost), slog.Int64("limit", c.valueLimit))
		return PutTooLarge
	}

	n, ok := c.m[k]
	if ok {
		if n.val == v {
			c.pol.OnGet(n)
			return PutExists
		}
		old := n.val
		c.size += cost - n.cost
		n.val, n.cost = v, cost
		c.pol.OnUpdate(n)
		if cb := c.opt.OnEvict; cb != nil {
			cb(k, old, EvictReplaced)
		}
	} else {
		n = &node[K, V]{key: k, val: v, cost: cost}
		c.m[k] = n
		c.pol.OnAdd(n)
	}

	c.stored = n
	c.trimLocked(c.maxSize, EvictCapacity)
	c.stored = nil
	return PutOK
}

// Remove deletes k if present and returns its value.
// Explicit removal is not counted as an eviction.
func (c *cache[K, V]) Remove(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	c.pol.OnRemove(n)
	c.unlink(n)
	delete(c.m, k)
	c.opt.Metrics.Size(c.len, c.size)
	return n.val, true
}

// Trim evicts LRU unpinned entries until Size() <= target.
func (c *cache[K, V]) Trim(target int64) {
	if target < 0 {
		target = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimLocked(target, EvictTrim)
}

// Clear evicts everything, pinned entries included. Consumers holding a
// pinned value keep their reference; the cache simply forgets it.
func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.tail != nil {
		c.evictNode(c.tail, EvictClear)
	}
	c.opt.Metrics.Size(c.len, c.size)
}

// Exist reports presence without promoting the entry.
func (c *cache[K, V]) Exist(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[k]
	return ok
}

// Keys returns resident keys from MRU to LRU.
func (c *cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.len)
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *cache[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *cache[K, V]) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the budget. A derived ValueLimit follows the new budget.
// Non-positive values are ignored.
func (c *cache[K, V]) SetMaxSize(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = n
	c.valueLimit = c.limitFor(n)
	c.trimLocked(n, EvictCapacity)
}

func (c *cache[K, V]) ValueLimit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valueLimit
}

// Len returns the number of resident entries.
func (c *cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len
}

func (c *cache[K, V]) Stats() Stats {
	c.mu.Lock()
	entries, size, maxSize := c.len, c.size, c.maxSize
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Entries:   entries,
		Size:      size,
		MaxSize:   maxSize,
	}
}

// Close drops every entry and marks the cache closed. Future operations
// miss or are rejected with PutClosed.
func (c *cache[K, V]) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.Clear()
	return nil
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight).
// A loaded value that is too large to cache is still returned.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, err, _ := c.sf.Do(ctx, k, func(ctx context.Context) (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err == nil {
			c.Put(k, v)
		}
		return v, err
	})
	return v, err
}

// -------------------- internals (mu held) --------------------

// trimLocked evicts policy victims until size <= target. When every
// remaining entry is pinned the cache stays over target.
func (c *cache[K, V]) trimLocked(target int64, reason EvictReason) {
	for c.size > target {
		victim := c.pol.Victim()
		if victim == nil {
			c.log.Debug("all entries pinned, exceeding budget",
				slog.Int64("size", c.size), slog.Int64("target", target))
			break
		}
		c.evictNode(victim.(*node[K, V]), reason)
	}
	c.opt.Metrics.Size(c.len, c.size)
}

// evictNode removes the node, updates metrics/counters, and calls OnEvict.
func (c *cache[K, V]) evictNode(n *node[K, V], reason EvictReason) {
	c.pol.OnRemove(n)
	c.unlink(n)
	delete(c.m, n.key)
	c.evicts.Add(1)
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

func (c *cache[K, V]) pinned(n *node[K, V]) bool {
	return n == c.stored || (c.opt.Pinned != nil && c.opt.Pinned(n.val))
}

// limitFor derives the per-value ceiling for a budget.
func (c *cache[K, V]) limitFor(maxSize int64) int64 {
	limit := c.opt.ValueLimit
	if limit <= 0 {
		ratio := c.opt.ValueLimitRatio
		if ratio <= 0 || ratio > 1 {
			ratio = DefaultValueLimitRatio
		}
		limit = int64(float64(maxSize) * ratio)
	}
	if limit > maxSize {
		limit = maxSize
	}
	return limit
}

// costOf computes the per-entry cost; nil Cost counts entries.
func (c *cache[K, V]) costOf(v V) int64 {
	if c.opt.Cost == nil {
		return 1
	}
	if n := c.opt.Cost(v); n > 0 {
		return n
	}
	return 0
}
