// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// advance waits for the loop's ticker to be registered, then moves time.
func advance(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	clock.Advance(d)
}

func waitTicks(t *testing.T, l *Loop, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.Ticks() < want {
		if time.Now().After(deadline) {
			t.Fatalf("ticks = %d, want %d", l.Ticks(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
}

func TestLoop_TicksOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int32
	l := New(Config{Name: "test", Interval: 10 * time.Second, Clock: clock}, func(context.Context, int) bool {
		atomic.AddInt32(&calls, 1)
		return false
	})

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("tick ran before the first interval")
	}
	advance(t, clock, 10*time.Second)
	waitTicks(t, l, 1)
	advance(t, clock, 10*time.Second)
	waitTicks(t, l, 2)

	if !l.IsRunning() {
		t.Error("expected loop to be running")
	}
}

func TestLoop_Immediate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(Config{Interval: time.Minute, Immediate: true, Clock: clock}, func(context.Context, int) bool {
		return false
	})
	_ = l.Start(context.Background())
	defer l.Stop()

	waitTicks(t, l, 1)
}

func TestLoop_MaxTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var exitReason atomic.Value
	l := New(Config{
		Interval: time.Second,
		MaxTicks: 3,
		Clock:    clock,
		OnExit:   func(r ExitReason, _ int) { exitReason.Store(r) },
	}, func(context.Context, int) bool { return false })

	_ = l.Start(context.Background())
	for i := 1; i <= 3; i++ {
		advance(t, clock, time.Second)
		waitTicks(t, l, i)
	}
	waitDone(t, l)

	if l.Reason() != ExitMaxTicks {
		t.Errorf("Reason() = %q, want max_ticks", l.Reason())
	}
	if got, _ := exitReason.Load().(ExitReason); got != ExitMaxTicks {
		t.Errorf("OnExit reason = %q", got)
	}
	if l.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", l.Ticks())
	}
}

func TestLoop_TickFuncStops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(Config{Interval: time.Second, Immediate: true, Clock: clock}, func(_ context.Context, tick int) bool {
		return tick == 1
	})
	_ = l.Start(context.Background())
	waitDone(t, l)

	if l.Reason() != ExitFinished {
		t.Errorf("Reason() = %q, want finished", l.Reason())
	}
	if l.IsRunning() {
		t.Error("loop still running")
	}
}

func TestLoop_StopCancelsTickContext(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	l := New(Config{Interval: time.Hour, Immediate: true}, func(ctx context.Context, _ int) bool {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return false
	})
	_ = l.Start(context.Background())
	<-started

	l.Stop()
	if !sawCancel.Load() {
		t.Error("tick context was not canceled by Stop")
	}
	if l.Reason() != ExitStopped {
		t.Errorf("Reason() = %q, want stopped", l.Reason())
	}
}

func TestLoop_HaltFromInsideTick(t *testing.T) {
	var l *Loop
	l = New(Config{Interval: time.Hour, Immediate: true}, func(context.Context, int) bool {
		l.Halt()
		return false
	})
	_ = l.Start(context.Background())
	waitDone(t, l)
}

func TestLoop_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(Config{Interval: time.Hour}, func(context.Context, int) bool { return false })
	_ = l.Start(ctx)
	cancel()
	waitDone(t, l)

	if l.Reason() != ExitCanceled {
		t.Errorf("Reason() = %q, want canceled", l.Reason())
	}
}

func TestLoop_Restart(t *testing.T) {
	l := New(Config{Interval: time.Hour, Immediate: true}, func(context.Context, int) bool { return false })

	_ = l.Start(context.Background())
	_ = l.Start(context.Background())
	waitTicks(t, l, 1)
	l.Stop()

	_ = l.Start(context.Background())
	defer l.Stop()
	waitTicks(t, l, 1)
	if !l.IsRunning() {
		t.Error("restarted loop not running")
	}
}

func TestLoop_StopBeforeStart(t *testing.T) {
	l := New(Config{Interval: time.Second}, func(context.Context, int) bool { return false })
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() blocked on a loop that never started")
	}
}

func TestLoop_Serve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(Config{Interval: time.Hour}, func(context.Context, int) bool { return false })

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !l.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}
	if l.IsRunning() {
		t.Error("loop still running after Serve returned")
	}
}
