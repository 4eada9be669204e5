package cache

import "github.com/IvanBrykalov/imgcache/policy"

// insertFront inserts n at MRU in O(1).
func (c *cache[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.len++
	c.size += n.cost
}

// moveToFront promotes n to MRU in O(1).
func (c *cache[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.tail == n {
		c.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// unlink removes n from the list and updates counters in O(1).
func (c *cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	c.len--
	c.size -= n.cost
	if c.size < 0 {
		c.size = 0
	}
}

// listHooks adapts the cache's list operations to policy.Hooks.
type listHooks[K comparable, V comparable] struct{ c *cache[K, V] }

func (h listHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.c.moveToFront(x.(*node[K, V])) }
func (h listHooks[K, V]) PushFront(x policy.Node[K, V])   { h.c.insertFront(x.(*node[K, V])) }
func (h listHooks[K, V]) Remove(x policy.Node[K, V])      { h.c.unlink(x.(*node[K, V])) }
func (h listHooks[K, V]) Len() int                        { return h.c.len }

// Back and Prev return a literal nil at the ends: wrapping a nil *node in
// the interface would make it non-nil for the policy.
func (h listHooks[K, V]) Back() policy.Node[K, V] {
	if h.c.tail == nil {
		return nil
	}
	return h.c.tail
}

func (h listHooks[K, V]) Prev(x policy.Node[K, V]) policy.Node[K, V] {
	if p := x.(*node[K, V]).prev; p != nil {
		return p
	}
	return nil
}

func (h listHooks[K, V]) Pinned(x policy.Node[K, V]) bool {
	return h.c.pinned(x.(*node[K, V]))
}
