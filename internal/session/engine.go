// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/chat"
	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/events"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/payment"
	"github.com/tomtom215/ugflix-gateway/internal/subscription"
)

// Stream message types pushed through the Notifier.
const (
	KindPayment      = "payment"
	KindSubscription = "subscription"
	KindChat         = "chat"
)

// ErrEngineClosed is returned when a handle is requested from a closed engine.
var ErrEngineClosed = errors.New("session engine is closed")

// Notifier delivers stream messages to the user's connected clients.
type Notifier interface {
	Notify(userKey, msgType string, payload interface{})
}

// StreamCloser is implemented by notifiers that can end a user's streams.
// The registry uses it when a session is evicted.
type StreamCloser interface {
	CloseUser(userKey string) int
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string, interface{}) {}

// Engine owns everything one user session runs: the backend client, the
// manifest cache and everything built on it, payment watches and chat
// pollers. Background work runs on the engine's own context, never on a
// request context.
type Engine struct {
	key       string
	subject   string
	markerKey string
	created   time.Time

	cfg     *config.Config
	clock   clockwork.Clock
	client  *backend.UserClient
	markers marker.Store
	events  events.Publisher
	notify  Notifier

	manifest *subscription.ManifestCache
	resolver *subscription.Resolver
	guardCfg subscription.GuardConfig
	precheck *subscription.PreCheck
	widget   *subscription.Widget

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	watches map[string]*payment.Watch
	chats   map[string]*chat.Poller
}

func newEngine(key, subject string, client *backend.UserClient, cfg *config.Config, deps Deps) *Engine {
	ctx, cancel := context.WithCancel(logging.ContextWithSession(context.Background(), key))
	e := &Engine{
		key:       key,
		subject:   subject,
		markerKey: MarkerKeyFor(subject, key),
		created:   deps.Clock.Now(),
		cfg:       cfg,
		clock:     deps.Clock,
		client:    client,
		markers:   deps.Markers,
		events:    deps.Events,
		notify:    deps.Notifier,
		ctx:       ctx,
		cancel:    cancel,
		watches:   make(map[string]*payment.Watch),
		chats:     make(map[string]*chat.Poller),
	}

	e.manifest = subscription.NewManifestCache(client, cfg.Manifest.TTL, e.clock)
	e.resolver = subscription.NewResolver(e.manifest, e.clock, cfg.Access.ExpiringSoonDays)
	e.guardCfg = subscription.GuardConfig{
		RetryAttempts:    cfg.Access.RetryAttempts,
		RetryBaseDelay:   cfg.Access.RetryBaseDelay,
		AutoRedirect:     cfg.Access.AutoRedirect,
		PlansPath:        cfg.Access.PlansPath,
		ExpiringSoonDays: cfg.Access.ExpiringSoonDays,
	}
	e.precheck = subscription.NewPreCheck(client, e.markers, e.markerKey, cfg.Pending.PendingPath, e.clock)
	e.widget = subscription.NewWidget(e.resolver, cfg.Widget.RefreshInterval, cfg.Access.ExpiringSoonDays, e.clock,
		func(u subscription.WidgetUpdate) { e.notify.Notify(e.key, KindSubscription, u) })
	return e
}

// Key is the non-reversible session key derived from the token.
func (e *Engine) Key() string { return e.key }

// Subject is the token's unverified sub claim. It is used for logs and the
// pending-marker key, never for authorization.
func (e *Engine) Subject() string { return e.subject }

// MarkerKey is the key of the user's pending marker.
func (e *Engine) MarkerKey() string { return e.markerKey }

// Created returns when the engine was built.
func (e *Engine) Created() time.Time { return e.created }

func (e *Engine) Client() *backend.UserClient { return e.client }
func (e *Engine) Manifest() *subscription.ManifestCache { return e.manifest }
func (e *Engine) Resolver() *subscription.Resolver { return e.resolver }
func (e *Engine) PreCheck() *subscription.PreCheck { return e.precheck }
func (e *Engine) Widget() *subscription.Widget { return e.widget }
func (e *Engine) Context() context.Context { return e.ctx }

// NewGuard returns a fresh guard for one protected view, bound to this
// session's resolver. Views share the manifest cache, not guard state.
func (e *Engine) NewGuard() *subscription.Guard {
	g := subscription.NewGuard(e.resolver, e.guardCfg)
	g.SetIdentity(e.key)
	return g
}

// StartWidget begins pushing subscription updates. It is a no-op while the
// widget runs.
func (e *Engine) StartWidget() error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	return e.widget.Start(e.ctx)
}

// WatchPayment returns the watch for trackingID, starting one if none is
// open. created reports whether a new watch was started.
func (e *Engine) WatchPayment(trackingID string) (w *payment.Watch, created bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrEngineClosed
	}
	if w, ok := e.watches[trackingID]; ok {
		select {
		case <-w.Done():
			delete(e.watches, trackingID)
		default:
			return w, false, nil
		}
	}

	w, err = payment.Start(e.ctx, trackingID, payment.ConfigFrom(&e.cfg.Payment, e.clock), payment.Deps{
		API:       e.client,
		Markers:   e.markers,
		Events:    e.events,
		UserKey:   e.key,
		MarkerKey: e.markerKey,
		OnSuccess: e.resolver.Invalidate,
	})
	if err != nil {
		return nil, false, err
	}
	e.watches[trackingID] = w

	updates, _ := w.Subscribe()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for s := range updates {
			e.notify.Notify(e.key, KindPayment, s)
		}
	}()
	return w, true, nil
}

// Payment returns an open watch.
func (e *Engine) Payment(trackingID string) (*payment.Watch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.watches[trackingID]
	return w, ok
}

// StopPayment closes and forgets a watch.
func (e *Engine) StopPayment(trackingID string) bool {
	e.mu.Lock()
	w, ok := e.watches[trackingID]
	delete(e.watches, trackingID)
	e.mu.Unlock()
	if ok {
		w.Close()
	}
	return ok
}

// Chat returns the poller for conversationID, starting one if needed.
func (e *Engine) Chat(conversationID string) (*chat.Poller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if p, ok := e.chats[conversationID]; ok {
		if !p.Running() {
			if err := p.Start(e.ctx); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	p := chat.NewPoller(conversationID, e.client, chat.Config{
		PollInterval: e.cfg.Chat.PollInterval,
		SeenCapacity: e.cfg.Chat.SeenCapacity,
		Clock:        e.clock,
	}, func(u chat.Update) { e.notify.Notify(e.key, KindChat, u) })
	if err := p.Start(e.ctx); err != nil {
		return nil, err
	}
	e.chats[conversationID] = p
	return p, nil
}

// StopChat closes and forgets a conversation poller.
func (e *Engine) StopChat(conversationID string) bool {
	e.mu.Lock()
	p, ok := e.chats[conversationID]
	delete(e.chats, conversationID)
	e.mu.Unlock()
	if ok {
		p.Close()
	}
	return ok
}

// Counts returns the number of open watches and chat pollers.
func (e *Engine) Counts() (watches, chats int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.watches), len(e.chats)
}

// Close stops every loop the engine owns and waits for them. It is safe to
// call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	watches := e.watches
	chats := e.chats
	e.watches = map[string]*payment.Watch{}
	e.chats = map[string]*chat.Poller{}
	e.mu.Unlock()

	e.cancel()
	e.widget.Stop()
	for _, w := range watches {
		w.Close()
	}
	for _, p := range chats {
		p.Close()
	}
	e.wg.Wait()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
