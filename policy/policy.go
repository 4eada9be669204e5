// Package policy defines the eviction-policy contract used by the memory cache.
package policy

// Node is the minimal contract a cache entry must satisfy for a policy.
// It provides read-only access to the key and a pointer to the value.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the cache's intrusive MRU/LRU list. Implementations are provided by the cache.
//
// Concurrency: all hook calls happen under the cache lock.
// Important: hooks manage only the list; the cache owns the key->node map.
type Hooks[K comparable, V any] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[K, V])
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node[K, V])
	// Remove detaches the node from the list (map bookkeeping is done by the cache).
	Remove(Node[K, V])
	// Back returns the current LRU node (or nil if empty).
	Back() Node[K, V]
	// Prev returns the neighbour of n one step closer to MRU (or nil).
	Prev(n Node[K, V]) Node[K, V]
	// Pinned reports whether n is in use and must not be evicted.
	Pinned(n Node[K, V]) bool
	// Len returns the number of resident nodes.
	Len() int
}

// ListPolicy is a policy instance bound to one cache's hooks.
// All methods are invoked under the cache lock.
//
// Semantics:
//   - OnAdd places a new node; OnGet/OnUpdate typically promote it.
//   - OnRemove is a notification to update policy-internal state
//     (e.g., maintain ghost queues). The cache performs actual deletion.
//   - Victim returns the next eviction candidate, skipping pinned nodes.
//     It returns nil when every resident node is pinned.
type ListPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnGet(Node[K, V])
	OnUpdate(Node[K, V])
	OnRemove(Node[K, V])
	Victim() Node[K, V]
}

// Policy is a factory that creates policy instances bound to a cache's hooks.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) ListPolicy[K, V]
}

// OldestUnpinned walks the list from LRU towards MRU and returns the first
// node that is not pinned, or nil.
func OldestUnpinned[K comparable, V any](h Hooks[K, V]) Node[K, V] {
	for n := h.Back(); n != nil; n = h.Prev(n) {
		if !h.Pinned(n) {
			return n
		}
	}
	return nil
}
