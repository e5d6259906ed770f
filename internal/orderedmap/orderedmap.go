// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orderedmap provides an intrusive doubly-linked-list keyed
// container with O(1) touch-to-newest, O(1) delete, and O(k) bulk shrink.
//
// It is the recency-ordering primitive behind valuecache.Cache: the
// mechanics (manual prev/next pointers, head/tail anchors) follow
// bytecache.Cache's shard engine, the iterator shape (NewIterator, Next,
// Key, Value) follows github.com/ava-labs/avalanchego/utils/linked.Hashmap,
// and the onEvict callback follows that same ancestor's
// cache/lru/cache.go's NewCacheWithOnEvict, whose Flush walks a NewIterator
// calling the same evict path Put/Evict use. Not safe for concurrent use;
// callers serialize access with their own lock.
package orderedmap

// node is one entry's linkage plus payload. Kept as a single allocation per
// entry so touch/evict never walk the map.
type node[V any] struct {
	key        string
	value      V
	prev, next *node[V]
}

// Evicted describes an entry removed by any eviction path: capacity
// pressure, an explicit Delete, a shrinking SetMaxSize, or Clear.
type Evicted[V any] struct {
	Key   string
	Value V
}

// Map is an ordered key->value container. The zero value is not usable; use
// New or NewWithOnEvict.
type Map[V any] struct {
	nodes map[string]*node[V]
	head  *node[V] // oldest
	tail  *node[V] // newest

	maxSize int // 0 means unbounded
	onEvict func(Evicted[V])
}

// New creates a Map bounded at maxSize entries, with no eviction callback.
// maxSize <= 0 is normalized to unbounded.
func New[V any](maxSize int) *Map[V] {
	return NewWithOnEvict[V](maxSize, func(Evicted[V]) {})
}

// NewWithOnEvict creates a Map bounded at maxSize entries. onEvict is called
// once for every entry removed from the map, by any path (Set's capacity
// eviction, Delete, SetMaxSize's shrink, Clear), before the entry's node is
// unlinked from recency order.
func NewWithOnEvict[V any](maxSize int, onEvict func(Evicted[V])) *Map[V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Map[V]{
		nodes:   make(map[string]*node[V]),
		maxSize: maxSize,
		onEvict: onEvict,
	}
}

// Len returns the number of entries currently stored.
func (m *Map[V]) Len() int {
	return len(m.nodes)
}

// MaxSize returns the configured cap, or 0 for unbounded.
func (m *Map[V]) MaxSize() int {
	return m.maxSize
}

// PortionFilled returns the fraction of MaxSize currently occupied, or 0 if
// unbounded.
func (m *Map[V]) PortionFilled() float64 {
	if m.maxSize == 0 {
		return 0
	}
	return float64(len(m.nodes)) / float64(m.maxSize)
}

// Set upserts key/value. If key is new and inserting it would exceed the
// configured cap, the current oldest entry is evicted (onEvict fires for
// it) before the insert. If key already exists, its value is replaced and
// it is touched to newest; no eviction occurs in that path.
func (m *Map[V]) Set(key string, value V) {
	if n, ok := m.nodes[key]; ok {
		n.value = value
		m.touchToNewest(n)
		return
	}

	if m.maxSize > 0 && len(m.nodes) >= m.maxSize {
		if oldest := m.head; oldest != nil {
			m.evictNode(oldest)
		}
	}

	n := &node[V]{key: key, value: value}
	m.pushNewest(n)
	m.nodes[key] = n
}

// Get returns the value for key, touching it to newest. The zero value and
// false are returned on a miss.
func (m *Map[V]) Get(key string) (V, bool) {
	if n, ok := m.nodes[key]; ok {
		m.touchToNewest(n)
		return n.value, true
	}
	var zero V
	return zero, false
}

// GetWithoutTouch returns the value for key without changing recency order.
func (m *Map[V]) GetWithoutTouch(key string) (V, bool) {
	if n, ok := m.nodes[key]; ok {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Has reports whether key is present, without touching recency order.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.nodes[key]
	return ok
}

// Delete removes key (onEvict fires for it) and reports whether it was
// present.
func (m *Map[V]) Delete(key string) bool {
	n, ok := m.nodes[key]
	if !ok {
		return false
	}
	m.evictNode(n)
	return true
}

// SetMaxSize updates the cap. If the new cap is smaller than the current
// size, the oldest entries are evicted, oldest-first (onEvict fires for
// each, in eviction order), until the cap is honored. n <= 0 means
// unbounded.
func (m *Map[V]) SetMaxSize(n int) {
	if n < 0 {
		n = 0
	}
	m.maxSize = n
	if n == 0 {
		return
	}
	for len(m.nodes) > n {
		oldest := m.head
		if oldest == nil {
			break
		}
		m.evictNode(oldest)
	}
}

// Clear removes every entry, oldest->newest (onEvict fires for each, via the
// same Iterator exposed by NewIterator), and resets the container (the cap
// is preserved).
func (m *Map[V]) Clear() {
	for it := m.NewIterator(); it.Next(); {
		m.onEvict(Evicted[V]{Key: it.Key(), Value: it.Value()})
	}
	m.nodes = make(map[string]*node[V])
	m.head, m.tail = nil, nil
}

// ForEach calls cb for every entry, oldest->newest. cb must not mutate the
// map.
func (m *Map[V]) ForEach(cb func(key string, value V)) {
	for n := m.head; n != nil; n = n.next {
		cb(n.key, n.value)
	}
}

// Iterator yields entries oldest->newest. Mutating the map mid-iteration
// yields undefined results for that iterator, matching
// utils/linked.Hashmap's contract.
type Iterator[V any] struct {
	next *node[V]
	cur  *node[V]
}

// NewIterator returns an iterator positioned before the oldest entry.
func (m *Map[V]) NewIterator() *Iterator[V] {
	return &Iterator[V]{next: m.head}
}

// Next advances the iterator and reports whether an entry is available.
func (it *Iterator[V]) Next() bool {
	if it.next == nil {
		it.cur = nil
		return false
	}
	it.cur = it.next
	it.next = it.next.next
	return true
}

// Key returns the current entry's key. Zero value before the first Next or
// after exhaustion.
func (it *Iterator[V]) Key() string {
	if it.cur == nil {
		return ""
	}
	return it.cur.key
}

// Value returns the current entry's value.
func (it *Iterator[V]) Value() V {
	if it.cur == nil {
		var zero V
		return zero
	}
	return it.cur.value
}

// evictNode fires onEvict for n, then unlinks and drops it. Shared by Set's
// capacity eviction, Delete and SetMaxSize's shrink so eviction
// notification never drifts out of sync with actual removal; Clear fires
// onEvict itself while walking the iterator, then resets the whole map.
func (m *Map[V]) evictNode(n *node[V]) {
	m.onEvict(Evicted[V]{Key: n.key, Value: n.value})
	m.unlink(n)
	delete(m.nodes, n.key)
}

func (m *Map[V]) pushNewest(n *node[V]) {
	n.prev = m.tail
	n.next = nil
	if m.tail != nil {
		m.tail.next = n
	}
	m.tail = n
	if m.head == nil {
		m.head = n
	}
}

func (m *Map[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		m.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		m.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (m *Map[V]) touchToNewest(n *node[V]) {
	if m.tail == n {
		return
	}
	m.unlink(n)
	m.pushNewest(n)
}
