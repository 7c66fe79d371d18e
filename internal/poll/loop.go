// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package poll provides the cancellable interval loop behind every poller in
// the gateway: payment auto-check, chat refresh, widget refresh and the
// session janitor.
//
// A Loop is a handle. Start launches it, Stop cancels it and waits for the
// goroutine to exit, and Serve adapts it to suture.Service. A loop also ends
// on its own after MaxTicks ticks or when the tick function asks to stop.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
)

// ExitReason records why a loop ended.
type ExitReason string

const (
	ExitStopped  ExitReason = "stopped"
	ExitCanceled ExitReason = "canceled"
	ExitMaxTicks ExitReason = "max_ticks"
	ExitFinished ExitReason = "finished"
)

// TickFunc runs once per tick. tick starts at 1. Returning true ends the loop.
type TickFunc func(ctx context.Context, tick int) (stop bool)

// Config configures a Loop.
type Config struct {
	// Name appears in log lines.
	Name string

	Interval time.Duration

	// MaxTicks ends the loop after that many ticks. Zero means unbounded.
	MaxTicks int

	// Immediate runs the first tick on Start instead of after one interval.
	Immediate bool

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// OnExit is called from the loop goroutine after the last tick.
	OnExit func(reason ExitReason, ticks int)
}

// Loop is safe for concurrent use.
type Loop struct {
	cfg Config
	fn  TickFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	ticks   int
	reason  ExitReason
}

// New creates a stopped loop.
func New(cfg Config, fn TickFunc) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Name == "" {
		cfg.Name = "poll"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Loop{cfg: cfg, fn: fn, done: done}
}

// Start launches the loop. It is a no-op while the loop is running. The loop
// stops when ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.ticks = 0
	l.reason = ""

	logging.Debug().Str("loop", l.cfg.Name).Dur("interval", l.cfg.Interval).Int("max_ticks", l.cfg.MaxTicks).Msg("Starting poll loop")

	go l.run(loopCtx, ctx, l.done)
	return nil
}

// Halt cancels the loop without waiting. Safe to call from inside a tick.
func (l *Loop) Halt() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels the loop and waits for it to exit. Must not be called from
// inside a tick; use Halt there.
func (l *Loop) Stop() {
	l.Halt()
	<-l.Done()
}

// Done is closed when the current run has exited.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Serve implements suture.Service.
func (l *Loop) Serve(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	return ctx.Err()
}

// IsRunning reports whether the loop goroutine is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Ticks returns the ticks run by the current or last run.
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Reason returns why the last run ended, or "" while running.
func (l *Loop) Reason() ExitReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

func (l *Loop) run(ctx, parent context.Context, done chan struct{}) {
	reason := ExitStopped
	defer func() {
		l.mu.Lock()
		l.running = false
		l.reason = reason
		ticks := l.ticks
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
		l.mu.Unlock()

		logging.Debug().Str("loop", l.cfg.Name).Str("reason", string(reason)).Int("ticks", ticks).Msg("Poll loop exited")
		if l.cfg.OnExit != nil {
			l.cfg.OnExit(reason, ticks)
		}
		close(done)
	}()

	// tick returns false when the loop must end.
	tick := func() bool {
		l.mu.Lock()
		l.ticks++
		n := l.ticks
		l.mu.Unlock()

		if l.fn(ctx, n) {
			reason = ExitFinished
			return false
		}
		if l.cfg.MaxTicks > 0 && n >= l.cfg.MaxTicks {
			reason = ExitMaxTicks
			return false
		}
		return true
	}

	exitReason := func() ExitReason {
		if parent.Err() != nil {
			return ExitCanceled
		}
		return ExitStopped
	}

	if l.cfg.Immediate {
		if ctx.Err() != nil {
			reason = exitReason()
			return
		}
		if !tick() {
			return
		}
	}

	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			reason = exitReason()
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				reason = exitReason()
				return
			}
			if !tick() {
				return
			}
		}
	}
}
