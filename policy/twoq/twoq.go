// Package twoq implements a scan-resistant 2Q eviction policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/imgcache/policy"
)

// twoQ implements the 2Q eviction policy on top of the cache list.
//
// Resident queues:
//   - A1in (probation): first-time entries; tracked in its own list + index
//   - Am   (protected): entries hit at least once; ordered by the cache list
//
// Ghost A1out: keys only, recently evicted A1in keys. A ghost key that is
// admitted again bypasses A1in.
//
// Eviction prefers the oldest unpinned A1in entry while A1in is over its
// capacity, so a burst of one-off images (e.g. a fast scroll) cannot flush
// images that were actually reused.
//
// Concurrency: all methods are called under the cache lock.
type twoQ[K comparable, V any] struct {
	h policy.Hooks[K, V]

	capIn    int
	capGhost int

	// A1in: MRU at Front() -> LRU at Back()
	inList *list.List
	inIdx  map[policy.Node[K, V]]*list.Element

	// A1out (ghosts): MRU at Front() -> LRU at Back()
	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

// New constructs a 2Q policy factory. capIn bounds the probation queue and
// capGhost the ghost queue, both in entries.
// Common choices: capIn ≈ 25% of the expected entry count; capGhost ≈ 50%.
func New[K comparable, V any](capIn, capGhost int) policy.Policy[K, V] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy[K, V]{capIn: capIn, capGhost: capGhost}
}

type twoQPolicy[K comparable, V any] struct {
	capIn    int
	capGhost int
}

func (p twoQPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ListPolicy[K, V] {
	return &twoQ[K, V]{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[K, V]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// OnAdd admission rules:
//   - A key present in ghosts goes straight to Am and its ghost is dropped.
//   - Otherwise the node enters A1in.
func (q *twoQ[K, V]) OnAdd(n policy.Node[K, V]) {
	k := n.Key()
	q.h.PushFront(n)
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		return
	}
	q.inIdx[n] = q.inList.PushFront(n)
}

// OnGet promotes an A1in node to Am and moves it to MRU.
func (q *twoQ[K, V]) OnGet(n policy.Node[K, V]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet semantics.
func (q *twoQ[K, V]) OnUpdate(n policy.Node[K, V]) { q.OnGet(n) }

// OnRemove remembers keys leaving A1in as ghosts, bounded by capGhost.
// Removals from Am do not populate ghosts.
func (q *twoQ[K, V]) OnRemove(n policy.Node[K, V]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}

// Victim prefers the oldest unpinned A1in node while A1in is over capacity,
// then falls back to plain LRU order over the whole list.
func (q *twoQ[K, V]) Victim() policy.Node[K, V] {
	if q.inList.Len() > q.capIn {
		for el := q.inList.Back(); el != nil; el = el.Prev() {
			n := el.Value.(policy.Node[K, V])
			if !q.h.Pinned(n) {
				return n
			}
		}
	}
	return policy.OldestUnpinned(q.h)
}
