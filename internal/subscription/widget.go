// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/poll"
)

// DefaultWidgetInterval is how often the widget forces a manifest refresh.
const DefaultWidgetInterval = 5 * time.Minute

// WidgetUpdate is pushed to the user's stream after each refresh.
type WidgetUpdate struct {
	Status    *StatusView  `json:"subscription,omitempty"`
	ErrorKind backend.Kind `json:"error_kind,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StatusRefresher is the resolver call the widget drives.
type StatusRefresher interface {
	RefreshStatus(ctx context.Context) (Status, error)
}

// Widget keeps the subscription badge current by periodically forcing a
// manifest refresh. A failed refresh publishes an update without status so
// the badge never shows stale access.
type Widget struct {
	src              StatusRefresher
	publish          func(WidgetUpdate)
	clock            clockwork.Clock
	expiringSoonDays int
	loop             *poll.Loop

	mu   sync.Mutex
	last *WidgetUpdate
}

// NewWidget creates a stopped widget. publish may be nil.
func NewWidget(src StatusRefresher, interval time.Duration, expiringSoonDays int, clock clockwork.Clock, publish func(WidgetUpdate)) *Widget {
	if interval <= 0 {
		interval = DefaultWidgetInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if expiringSoonDays <= 0 {
		expiringSoonDays = DefaultExpiringSoonDays
	}
	w := &Widget{
		src:              src,
		publish:          publish,
		clock:            clock,
		expiringSoonDays: expiringSoonDays,
	}
	w.loop = poll.New(poll.Config{
		Name:      "subscription_widget",
		Interval:  interval,
		Immediate: true,
		Clock:     clock,
	}, w.tick)
	return w
}

// Start begins refreshing. It is a no-op while running.
func (w *Widget) Start(ctx context.Context) error {
	return w.loop.Start(ctx)
}

// Stop halts refreshing and waits for the loop to exit.
func (w *Widget) Stop() {
	w.loop.Stop()
}

// Running reports whether the refresh loop is active.
func (w *Widget) Running() bool {
	return w.loop.IsRunning()
}

// Last returns the most recent update.
func (w *Widget) Last() (WidgetUpdate, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return WidgetUpdate{}, false
	}
	return *w.last, true
}

func (w *Widget) tick(ctx context.Context, _ int) bool {
	update := WidgetUpdate{UpdatedAt: w.clock.Now()}
	st, err := w.src.RefreshStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logging.Ctx(ctx).Debug().Err(err).Msg("Widget refresh failed")
		update.ErrorKind = backend.KindOf(err)
	} else {
		view := st.View(w.expiringSoonDays)
		update.Status = &view
	}

	w.mu.Lock()
	w.last = &update
	w.mu.Unlock()

	if w.publish != nil {
		w.publish(update)
	}
	return false
}
