package cache

import "context"

// PutStatus reports the outcome of Put. Negative values are rejections.
type PutStatus int

const (
	// PutOK means the value was stored (inserted or replaced).
	PutOK PutStatus = 0
	// PutTooLarge means the value exceeds ValueLimit and was not cached.
	// The cache is left unchanged.
	PutTooLarge PutStatus = -1
	// PutExists means the key already maps to an equal value (no-op).
	PutExists PutStatus = -2
	// PutClosed means the cache has been closed.
	PutClosed PutStatus = -3
)

func (s PutStatus) String() string {
	switch s {
	case PutOK:
		return "ok"
	case PutTooLarge:
		return "too_large"
	case PutExists:
		return "exists"
	case PutClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
	Entries   int
	Size      int64
	MaxSize   int64
}

// Cache is a size-bounded in-memory key/value cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1):
// a map lookup plus constant-time list adjustments under the cache lock.
type Cache[K comparable, V comparable] interface {
	// Get returns the value for k and a boolean flag indicating presence.
	// On hit, the entry is promoted according to the policy.
	Get(k K) (V, bool)

	// Put inserts or replaces k→v and then evicts least-recently-used
	// unpinned entries until Size() <= MaxSize().
	Put(k K, v V) PutStatus

	// Remove deletes k and returns the prior value, if any.
	Remove(k K) (V, bool)

	// Trim evicts least-recently-used unpinned entries until Size() <= target.
	Trim(target int64)

	// Clear evicts every entry, pinned ones included.
	Clear()

	// Exist reports presence without touching recency.
	Exist(k K) bool

	// Keys returns resident keys from most to least recently used.
	Keys() []K

	// Size returns the total cost of resident entries.
	Size() int64

	// MaxSize returns the current budget.
	MaxSize() int64

	// SetMaxSize changes the budget and evicts down to it.
	SetMaxSize(n int64)

	// ValueLimit returns the largest cost a single value may have.
	ValueLimit() int64

	// Len returns the number of resident entries.
	Len() int

	// Stats returns hit/miss/eviction counters and current occupancy.
	Stats() Stats

	// GetOrLoad returns the value for k, loading it via Options.Loader on miss.
	// Concurrent loads for the same key are coalesced (singleflight).
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Close drops every entry and marks the cache closed.
	Close() error
}
