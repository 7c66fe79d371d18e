// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/cache"
	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/events"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/poll"
)

var (
	// ErrNoToken is returned for an empty bearer token.
	ErrNoToken = errors.New("bearer token is required")

	// ErrTokenExpired is returned when the token's exp claim has passed.
	ErrTokenExpired = errors.New("bearer token has expired")

	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("session registry is closed")
)

// Deps are shared by every engine. Backend is required.
type Deps struct {
	Backend  *backend.Client
	Markers  marker.Store
	Events   events.Publisher
	Notifier Notifier
	Clock    clockwork.Clock
}

// Registry maps bearer tokens to engines. Engines idle for longer than the
// configured timeout, or whose token has expired, are closed by the janitor
// or on their next lookup.
type Registry struct {
	cfg     *config.Config
	deps    Deps
	engines *cache.LRU[string, *Engine]
	janitor *poll.Loop

	mu     sync.Mutex
	closed bool
}

// NewRegistry creates an empty registry. Call Serve (or add it to a
// supervisor) to run the janitor.
func NewRegistry(cfg *config.Config, deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}

	r := &Registry{cfg: cfg, deps: deps}
	capacity := cfg.Session.MaxSessions
	if capacity <= 0 {
		capacity = 10000
	}
	r.engines = cache.NewLRU[string, *Engine](capacity, cfg.Session.IdleTimeout, deps.Clock, r.evicted)
	r.janitor = poll.New(poll.Config{
		Name:     "session_janitor",
		Interval: cfg.Session.JanitorInterval,
		Clock:    deps.Clock,
	}, func(ctx context.Context, _ int) bool {
		r.Sweep(ctx)
		return false
	})
	return r
}

// KeyFor derives the session key for a token. The token itself is never
// stored or logged.
func KeyFor(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// MarkerKeyFor derives the pending-marker key. It follows the token's sub
// claim so a marker survives re-login and token rotation; tokens without
// one fall back to the session key.
func MarkerKeyFor(subject, sessionKey string) string {
	if subject == "" {
		return sessionKey
	}
	sum := sha256.Sum256([]byte(subject))
	return "sub:" + hex.EncodeToString(sum[:16])
}

// Acquire returns the engine for token, building one on first use. Each
// call refreshes the idle timeout.
func (r *Registry) Acquire(ctx context.Context, token string) (*Engine, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	key := KeyFor(token)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if e, ok := r.engines.Get(key); ok {
		return e, nil
	}

	subject, deadline := tokenClaims(token)
	if !deadline.IsZero() && !r.deps.Clock.Now().Before(deadline) {
		return nil, ErrTokenExpired
	}

	e := newEngine(key, subject, r.deps.Backend.ForUser(token), r.cfg, r.deps)
	r.engines.AddWithDeadline(key, e, deadline)
	metrics.SessionsActive.Inc()

	ev := logging.Ctx(logging.ContextWithSession(ctx, key)).Debug()
	if !deadline.IsZero() {
		ev = ev.Time("token_exp", deadline)
	}
	ev.Str("subject", subject).Msg("Session engine created")
	return e, nil
}

// Lookup returns a live engine by key and refreshes its idle timeout.
func (r *Registry) Lookup(key string) (*Engine, bool) {
	return r.engines.Get(key)
}

// Touch refreshes the idle timeout of the engine for key. Streams call it
// on activity so a user with only an open stream is not evicted. It
// reports whether the engine is still live.
func (r *Registry) Touch(key string) bool {
	_, ok := r.engines.Get(key)
	return ok
}

// Release closes the engine for token, if any.
func (r *Registry) Release(token string) bool {
	return r.engines.Remove(KeyFor(token))
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of engines, including expired ones not yet swept.
func (r *Registry) Len() int { return r.engines.Len() }

// Sweep closes expired engines and returns how many were closed.
func (r *Registry) Sweep(ctx context.Context) int {
	n := r.engines.CleanupExpired()
	if n > 0 {
		logging.Ctx(ctx).Debug().Int("closed", n).Int("remaining", r.engines.Len()).Msg("Session janitor swept engines")
	}
	return n
}

// Serve runs the janitor until ctx is done. It implements suture.Service.
func (r *Registry) Serve(ctx context.Context) error {
	return r.janitor.Serve(ctx)
}

// String names the service in supervisor logs.
func (r *Registry) String() string { return "session-registry" }

// Close stops the janitor and closes every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.janitor.Stop()
	r.engines.Clear()
}

func (r *Registry) evicted(key string, e *Engine, reason cache.EvictReason) {
	if e == nil {
		return
	}
	e.Close()
	if closer, ok := r.deps.Notifier.(StreamCloser); ok {
		closer.CloseUser(key)
	}
	metrics.SessionsActive.Dec()
	metrics.SessionEvictions.WithLabelValues(string(reason)).Inc()
	logging.Debug().Str("session", key).Str("reason", string(reason)).Msg("Session engine closed")
}

// tokenClaims reads sub and exp without verifying the signature. The values
// only bound the engine's lifetime and label logs; the backend remains the
// authority on the token.
func tokenClaims(token string) (subject string, exp time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}
	}
	if sub, err := claims.GetSubject(); err == nil {
		subject = sub
	}
	if t, err := claims.GetExpirationTime(); err == nil && t != nil {
		exp = t.Time
	}
	return subject, exp
}
