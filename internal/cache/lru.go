// Package cache provides a generic LRU cache and the block-identity-keyed
// cache that sits in front of block file reads (spec.md §4.2).
//
// The generic LRU is adapted directly from the teacher's
// structures/lru_cache/lru_cache.go: a map to list.Element for O(1) access
// plus a doubly linked list ordered most-recently-used-first.
package cache

import (
	"container/list"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Get when the key isn't cached.
var ErrKeyNotFound = errors.New("cache: key not found")

// LRU is a generic least-recently-used cache bounded by a fixed capacity.
type LRU[K comparable, V any] struct {
	capacity int
	cacheMap map[K]*list.Element
	order    *list.List // front = most recently used, back = least
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates an LRU cache holding at most capacity entries. capacity must
// be positive; this is a Contract error at construction (spec.md §7).
func New[K comparable, V any](capacity int) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, errors.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	return &LRU[K, V]{
		capacity: capacity,
		cacheMap: make(map[K]*list.Element, capacity),
		order:    list.New(),
	}, nil
}

// Get returns the cached value for key, marking it most-recently-used.
func (c *LRU[K, V]) Get(key K) (V, error) {
	var zero V
	el, ok := c.cacheMap[key]
	if !ok {
		return zero, ErrKeyNotFound
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, nil
}

// Put inserts or updates key's value, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *LRU[K, V]) Put(key K, value V) {
	if el, ok := c.cacheMap[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	if len(c.cacheMap) >= c.capacity {
		back := c.order.Back()
		if back != nil {
			delete(c.cacheMap, back.Value.(*entry[K, V]).key)
			c.order.Remove(back)
		}
	}
	el := c.order.PushFront(&entry[K, V]{key: key, value: value})
	c.cacheMap[key] = el
}

// Remove evicts key if present.
func (c *LRU[K, V]) Remove(key K) {
	el, ok := c.cacheMap[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.cacheMap, key)
}

// Len returns the number of entries currently cached.
func (c *LRU[K, V]) Len() int {
	return len(c.cacheMap)
}

// Contains reports whether key is cached, without affecting recency.
func (c *LRU[K, V]) Contains(key K) bool {
	_, ok := c.cacheMap[key]
	return ok
}
