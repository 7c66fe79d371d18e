// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// EvictReason says why an LRU entry left the cache.
type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictExpired  EvictReason = "expired"
	EvictRemoved  EvictReason = "removed"
	EvictCleared  EvictReason = "cleared"
)

// EvictFunc is called after an entry leaves the cache, outside the lock, so
// it may call back into the cache or block on cleanup.
type EvictFunc[K comparable, V any] func(key K, value V, reason EvictReason)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
	prev  *lruEntry[K, V]
	next  *lruEntry[K, V]

	expiresAt time.Time
	// deadline caps expiresAt; zero means no cap.
	deadline time.Time
}

type evicted[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

// LRU is a thread-safe least recently used cache with idle expiry.
// Every Get slides the entry's expiry forward by ttl, but never past the
// entry's deadline if one was set with AddWithDeadline.
//
// A doubly-linked list keeps recency order: head.next is the most recently
// used entry, tail.prev the least.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock
	onEvict  EvictFunc[K, V]

	items map[K]*lruEntry[K, V]
	head  *lruEntry[K, V]
	tail  *lruEntry[K, V]

	hits   int64
	misses int64
}

// NewLRU creates an LRU. onEvict may be nil.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, clock clockwork.Clock, onEvict EvictFunc[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		onEvict:  onEvict,
		items:    make(map[K]*lruEntry[K, V], capacity),
		head:     &lruEntry[K, V]{},
		tail:     &lruEntry[K, V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the value and refreshes its recency and idle expiry.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	entry, exists := c.items[key]
	if !exists {
		c.misses++
		var zero V
		return zero, false
	}
	if !now.Before(entry.expiresAt) {
		c.removeEntry(entry)
		out = append(out, evicted[K, V]{entry.key, entry.value, EvictExpired})
		c.misses++
		var zero V
		return zero, false
	}

	entry.expiresAt = c.expiry(now, entry.deadline)
	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// Contains reports presence without touching recency or expiry.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.items[key]
	return exists && c.clock.Now().Before(entry.expiresAt)
}

// Add inserts or replaces a value with no deadline.
func (c *LRU[K, V]) Add(key K, value V) {
	c.AddWithDeadline(key, value, time.Time{})
}

// AddWithDeadline inserts or replaces a value whose expiry never passes
// deadline. Replacing a value does not call onEvict for the old one.
func (c *LRU[K, V]) AddWithDeadline(key K, value V, deadline time.Time) {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.deadline = deadline
		entry.expiresAt = c.expiry(now, deadline)
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry[K, V]{
		key:       key,
		value:     value,
		deadline:  deadline,
		expiresAt: c.expiry(now, deadline),
	}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		oldest := c.tail.prev
		c.removeEntry(oldest)
		out = append(out, evicted[K, V]{oldest.key, oldest.value, EvictCapacity})
	}
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntry(entry)
	out = append(out, evicted[K, V]{entry.key, entry.value, EvictRemoved})
	return true
}

// IsDuplicate reports whether key was already recorded and live. If not, it
// records key with the zero value. Used for message de-duplication.
func (c *LRU[K, V]) IsDuplicate(key K) bool {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if entry, exists := c.items[key]; exists {
		if now.Before(entry.expiresAt) {
			entry.expiresAt = c.expiry(now, entry.deadline)
			c.moveToFront(entry)
			c.hits++
			return true
		}
		c.removeEntry(entry)
		out = append(out, evicted[K, V]{entry.key, entry.value, EvictExpired})
	}

	var zero V
	entry := &lruEntry[K, V]{key: key, value: zero, expiresAt: c.expiry(now, time.Time{})}
	c.addToFront(entry)
	c.items[key] = entry
	for len(c.items) > c.capacity {
		oldest := c.tail.prev
		c.removeEntry(oldest)
		out = append(out, evicted[K, V]{oldest.key, oldest.value, EvictCapacity})
	}
	c.misses++
	return false
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *LRU[K, V]) CleanupExpired() int {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if !now.Before(entry.expiresAt) {
			c.removeEntry(entry)
			out = append(out, evicted[K, V]{entry.key, entry.value, EvictExpired})
		}
		entry = prev
	}
	return len(out)
}

// Clear removes every entry, reporting each with EvictCleared.
func (c *LRU[K, V]) Clear() {
	var out []evicted[K, V]
	defer func() { c.notify(out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	for entry := c.head.next; entry != c.tail; entry = entry.next {
		out = append(out, evicted[K, V]{entry.key, entry.value, EvictCleared})
	}
	c.items = make(map[K]*lruEntry[K, V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Stats returns hit/miss counters and the current size.
func (c *LRU[K, V]) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

func (c *LRU[K, V]) notify(out []evicted[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.value, e.reason)
	}
}

// Internal methods (must be called with lock held)

func (c *LRU[K, V]) expiry(now, deadline time.Time) time.Time {
	exp := now.Add(c.ttl)
	if !deadline.IsZero() && deadline.Before(exp) {
		return deadline
	}
	return exp
}

func (c *LRU[K, V]) addToFront(entry *lruEntry[K, V]) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LRU[K, V]) moveToFront(entry *lruEntry[K, V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *LRU[K, V]) removeEntry(entry *lruEntry[K, V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}
