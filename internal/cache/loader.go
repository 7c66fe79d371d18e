// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/ugflix-gateway/internal/metrics"
)

// FetchFunc produces a fresh value. The context passed to it is detached
// from any single caller's cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Entry is an immutable cached value and the time it was fetched.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Loader caches one value for a fixed TTL. Concurrent misses share a single
// fetch. Failed fetches are never cached.
type Loader[T any] struct {
	name  string
	ttl   time.Duration
	clock clockwork.Clock
	fetch FetchFunc[T]

	group singleflight.Group

	mu         sync.Mutex
	entry      *Entry[T]
	generation uint64
}

// sharedKey is the only singleflight key; a Loader holds one value.
const sharedKey = "value"

// NewLoader creates a Loader. name labels metrics.
func NewLoader[T any](name string, ttl time.Duration, clock clockwork.Clock, fetch FetchFunc[T]) *Loader[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Loader[T]{
		name:  name,
		ttl:   ttl,
		clock: clock,
		fetch: fetch,
	}
}

// Get returns the cached value or fetches a new one.
func (l *Loader[T]) Get(ctx context.Context, forceRefresh bool) (T, error) {
	entry, _, err := l.GetEntry(ctx, forceRefresh)
	return entry.Value, err
}

// GetEntry returns the entry and whether it was served from cache.
//
// A value younger than the TTL is returned without a fetch unless
// forceRefresh is set. Otherwise the caller joins the in-flight fetch if one
// exists, or starts one. A forced refresh also joins an in-flight fetch
// because that fetch is already newer than anything cached.
//
// Fetch errors are returned unchanged. Returning early because ctx is done
// does not cancel the shared fetch.
func (l *Loader[T]) GetEntry(ctx context.Context, forceRefresh bool) (Entry[T], bool, error) {
	l.mu.Lock()
	if !forceRefresh && l.entry != nil && l.clock.Since(l.entry.FetchedAt) < l.ttl {
		entry := *l.entry
		l.mu.Unlock()
		metrics.RecordCacheLookup(l.name, true)
		return entry, true, nil
	}
	gen := l.generation
	l.mu.Unlock()
	metrics.RecordCacheLookup(l.name, false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(sharedKey, func() (interface{}, error) {
		return l.load(fetchCtx, gen)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheSharedWaits.WithLabelValues(l.name).Inc()
		}
		if res.Err != nil {
			var zero Entry[T]
			return zero, false, res.Err
		}
		entry, ok := res.Val.(Entry[T])
		if !ok {
			var zero Entry[T]
			return zero, false, fmt.Errorf("cache %s: unexpected value type %T", l.name, res.Val)
		}
		return entry, false, nil
	case <-ctx.Done():
		var zero Entry[T]
		return zero, false, ctx.Err()
	}
}

// load runs the fetch and stores the result if no Invalidate happened
// since gen was read.
func (l *Loader[T]) load(ctx context.Context, gen uint64) (interface{}, error) {
	value, err := l.fetch(ctx)
	if err != nil {
		metrics.RecordCacheFetch(l.name, "error")
		return nil, err
	}

	entry := Entry[T]{Value: value, FetchedAt: l.clock.Now()}

	l.mu.Lock()
	if l.generation == gen {
		l.entry = &entry
		metrics.RecordCacheFetch(l.name, "success")
	} else {
		metrics.RecordCacheFetch(l.name, "discarded")
	}
	l.mu.Unlock()

	return entry, nil
}

// Invalidate drops the cached value. The next Get always fetches, and a
// fetch already in flight will not repopulate the cache.
func (l *Loader[T]) Invalidate() {
	l.mu.Lock()
	hadEntry := l.entry != nil
	l.entry = nil
	l.generation++
	l.mu.Unlock()

	l.group.Forget(sharedKey)
	if hadEntry {
		metrics.CacheEvictions.WithLabelValues(l.name, "invalidated").Inc()
	}
}

// Peek returns the cached entry without fetching, even if it is stale.
func (l *Loader[T]) Peek() (Entry[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entry == nil {
		return Entry[T]{}, false
	}
	return *l.entry, true
}
