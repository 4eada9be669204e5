package cache

// node is an intrusive doubly linked list element owned by the cache.
type node[K comparable, V comparable] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// cost is the value's share of the budget, fixed at insertion.
	cost int64
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// Callers must only use it while holding the cache lock.
func (n *node[K, V]) Value() *V { return &n.val }
