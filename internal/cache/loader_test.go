// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type manifestStub struct {
	version int64
}

// countingFetch returns a FetchFunc that counts calls and, when gate is
// non-nil, blocks each call until gate is closed or receives.
func countingFetch(calls *atomic.Int64, gate <-chan struct{}, started chan<- struct{}) FetchFunc[*manifestStub] {
	return func(ctx context.Context) (*manifestStub, error) {
		n := calls.Add(1)
		if started != nil {
			started <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		return &manifestStub{version: n}, nil
	}
}

func TestLoader_TTL(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var calls atomic.Int64
	l := NewLoader("test_ttl", 60*time.Second, clock, countingFetch(&calls, nil, nil))
	ctx := context.Background()

	first, err := l.Get(ctx, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	clock.Advance(59 * time.Second)
	second, cached, err := l.GetEntry(ctx, false)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !cached || second.Value != first {
		t.Errorf("expected cached identical value before TTL, cached=%v", cached)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d before TTL, want 1", calls.Load())
	}

	clock.Advance(time.Second)
	third, err := l.Get(ctx, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d at TTL, want 2", calls.Load())
	}
	if third == first {
		t.Error("expected a new value after TTL")
	}
}

func TestLoader_ForceRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	l := NewLoader("test_force", time.Hour, clockwork.NewFakeClock(), countingFetch(&calls, nil, nil))
	ctx := context.Background()

	if _, err := l.Get(ctx, false); err != nil {
		t.Fatal(err)
	}
	v, err := l.Get(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || v.version != 2 {
		t.Errorf("forced refresh: calls=%d version=%d, want 2/2", calls.Load(), v.version)
	}
}

func TestLoader_SingleFlight(t *testing.T) {
	t.Parallel()

	const callers = 25
	var calls atomic.Int64
	gate := make(chan struct{})
	started := make(chan struct{}, callers)
	l := NewLoader("test_singleflight", time.Minute, clockwork.NewFakeClock(), countingFetch(&calls, gate, started))

	results := make([]*manifestStub, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background(), false)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = v
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls.Load())
	}
	for i, v := range results {
		if v != results[0] {
			t.Errorf("caller %d received a different value", i)
		}
	}
}

func TestLoader_NoNegativeCaching(t *testing.T) {
	t.Parallel()

	errBackend := errors.New("backend down")
	var calls atomic.Int64
	l := NewLoader("test_negative", time.Minute, clockwork.NewFakeClock(), func(ctx context.Context) (*manifestStub, error) {
		if calls.Add(1) == 1 {
			return nil, errBackend
		}
		return &manifestStub{version: 2}, nil
	})

	if _, err := l.Get(context.Background(), false); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error unchanged, got %v", err)
	}
	if _, ok := l.Peek(); ok {
		t.Fatal("failed fetch must not populate the cache")
	}

	v, err := l.Get(context.Background(), false)
	if err != nil || v.version != 2 {
		t.Fatalf("second Get = %v, %v; want version 2", v, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestLoader_InvalidateDuringFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	gate := make(chan struct{}, 2)
	started := make(chan struct{}, 2)
	l := NewLoader("test_invalidate", time.Minute, clockwork.NewFakeClock(), countingFetch(&calls, gate, started))

	done := make(chan *manifestStub)
	go func() {
		v, _ := l.Get(context.Background(), false)
		done <- v
	}()

	<-started
	l.Invalidate()
	gate <- struct{}{}
	stale := <-done
	if stale == nil || stale.version != 1 {
		t.Fatalf("in-flight caller should still receive its result, got %+v", stale)
	}
	if _, ok := l.Peek(); ok {
		t.Fatal("fetch started before Invalidate must not repopulate the cache")
	}

	gate <- struct{}{}
	fresh, err := l.Get(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.version != 2 || calls.Load() != 2 {
		t.Errorf("after invalidate: version=%d calls=%d, want 2/2", fresh.version, calls.Load())
	}
}

func TestLoader_CallerCancelDoesNotAbortFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	l := NewLoader("test_cancel", time.Minute, clockwork.NewFakeClock(), countingFetch(&calls, gate, started))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.Get(ctx, false)
		errc <- err
	}()

	<-started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(gate)
	v, err := l.Get(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || v.version != 1 {
		t.Errorf("abandoned fetch should still populate: calls=%d version=%d", calls.Load(), v.version)
	}
}
