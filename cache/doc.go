// Package cache provides the in-memory tier of the image loader: a generic,
// size-bounded cache with pluggable eviction (LRU by default), a per-value
// ceiling, pin-aware eviction, optional singleflight loading and lightweight
// metrics hooks.
//
// Design
//
//   - Concurrency: one sync.Mutex per cache guards the map, the intrusive
//     MRU↔LRU list and the size bookkeeping. Get takes the lock too because
//     a hit reorders the list.
//
//   - Size: every value has a cost (Options.Cost, bytes for images). After
//     each Put the cache evicts policy victims until Size() <= MaxSize().
//
//   - Ceiling: Put rejects a value whose cost exceeds ValueLimit (80% of
//     MaxSize unless configured) with PutTooLarge and leaves the cache
//     unchanged.
//
//   - Pinning: Options.Pinned marks values that are in use (displayed).
//     Capacity eviction and Trim skip them; when only pinned entries remain
//     the cache is allowed to stay over budget. Clear drops them as well.
//
//   - Policies: eviction policy is pluggable via the policy package.
//     LRU is the default. A 2Q policy is provided (resists scan pollution).
//
//   - GetOrLoad: coalesces concurrent loads for the same key using singleflight.
//     If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug metrics/prom to export them.
//
// Basic usage
//
//	c := cache.New[string, *Bitmap](cache.Options[string, *Bitmap]{
//	    MaxSize: 64 << 20,
//	    Cost:    func(b *Bitmap) int64 { return b.Bytes() },
//	    Pinned:  func(b *Bitmap) bool { return b.InUse() },
//	})
//	if c.Put("a", bmp) == cache.PutTooLarge {
//	    // not cached; still usable by the caller
//	}
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//
// Memory pressure
//
//	cache.TrimToLevel(c, cache.TrimModerate) // keep roughly half
package cache
