// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package chat polls buyer/seller conversations and sends messages with
// optimistic insertion.
//
// Each Poller owns one conversation. New messages are fetched with
// after=<last id> and de-duplicated by id, so a message that arrives both
// through a poll and as the response to Send is shown once.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/cache"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/models"
	"github.com/tomtom215/ugflix-gateway/internal/poll"
	"github.com/tomtom215/ugflix-gateway/internal/validation"
)

const (
	// maxMessages bounds the in-memory history per conversation.
	maxMessages = 500

	seenTTL = 24 * time.Hour
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat poller is closed")

	// ErrUnknownMessage is returned by Resend for an unknown local id.
	ErrUnknownMessage = errors.New("no failed message with that local id")
)

// API is the backend surface the poller needs.
type API interface {
	ListMessages(ctx context.Context, conversationID, afterID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, conversationID, body string) (*models.ChatMessage, error)
}

// Config configures a Poller.
type Config struct {
	PollInterval time.Duration
	SeenCapacity int
	Clock        clockwork.Clock
}

// Update is published whenever the visible history changes.
type Update struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []models.ChatMessage `json:"messages"`
}

// Poller keeps one conversation current.
type Poller struct {
	conversationID string
	api            API
	clock          clockwork.Clock
	publish        func(Update)
	loop           *poll.Loop
	seen           *cache.LRU[models.ID, struct{}]

	mu       sync.Mutex
	messages []models.ChatMessage
	lastID   string
	closed   bool
}

// NewPoller creates a stopped poller. publish may be nil.
func NewPoller(conversationID string, api API, cfg Config, publish func(Update)) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	p := &Poller{
		conversationID: conversationID,
		api:            api,
		clock:          cfg.Clock,
		publish:        publish,
		seen:           cache.NewLRU[models.ID, struct{}](cfg.SeenCapacity, seenTTL, cfg.Clock, nil),
	}
	p.loop = poll.New(poll.Config{
		Name:      "chat_" + conversationID,
		Interval:  cfg.PollInterval,
		Immediate: true,
		Clock:     cfg.Clock,
	}, p.tick)
	return p
}

// ConversationID returns the conversation being polled.
func (p *Poller) ConversationID() string { return p.conversationID }

// Start begins polling. It is a no-op while running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return p.loop.Start(ctx)
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool { return p.loop.IsRunning() }

// Close stops polling and waits for the loop to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.loop.Stop()
}

// Messages returns a copy of the visible history, oldest first.
func (p *Poller) Messages() []models.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ChatMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Poll fetches messages newer than the last seen one and returns those that
// were not already visible.
func (p *Poller) Poll(ctx context.Context) ([]models.ChatMessage, error) {
	p.mu.Lock()
	after := p.lastID
	p.mu.Unlock()

	fetched, err := p.api.ListMessages(ctx, p.conversationID, after)
	if err != nil {
		metrics.ChatPolls.WithLabelValues(string(backend.KindOf(err))).Inc()
		return nil, fmt.Errorf("poll conversation %s: %w", p.conversationID, err)
	}
	metrics.ChatPolls.WithLabelValues("ok").Inc()

	var added []models.ChatMessage
	p.mu.Lock()
	for i := range fetched {
		msg := fetched[i]
		if msg.ID == "" {
			continue
		}
		p.lastID = msg.ID.String()
		if p.seen.IsDuplicate(msg.ID) {
			continue
		}
		msg.State = models.MessageSent
		p.appendLocked(msg)
		added = append(added, msg)
	}
	p.mu.Unlock()

	if len(added) > 0 {
		p.notify()
	}
	return added, nil
}

// Send shows the message immediately as pending, then posts it. On success
// the pending entry is replaced by the stored message; on failure it stays
// visible as failed so it can be resent.
func (p *Poller) Send(ctx context.Context, body string) (models.ChatMessage, error) {
	if verr := validation.ValidateStruct(models.SendMessageRequest{Body: body}); verr != nil {
		return models.ChatMessage{}, verr
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return models.ChatMessage{}, ErrClosed
	}
	local := models.ChatMessage{
		ConversationID: models.ID(p.conversationID),
		Body:           body,
		CreatedAt:      models.TimestampPtr(p.clock.Now()),
		LocalID:        uuid.NewString(),
		State:          models.MessagePending,
	}
	p.appendLocked(local)
	p.mu.Unlock()
	p.notify()

	return p.deliver(ctx, local)
}

// Resend retries a message that failed to send.
func (p *Poller) Resend(ctx context.Context, localID string) (models.ChatMessage, error) {
	p.mu.Lock()
	idx := p.indexLocked(localID)
	if idx < 0 || p.messages[idx].State != models.MessageFailed {
		p.mu.Unlock()
		return models.ChatMessage{}, ErrUnknownMessage
	}
	p.messages[idx].State = models.MessagePending
	local := p.messages[idx]
	p.mu.Unlock()
	p.notify()

	return p.deliver(ctx, local)
}

func (p *Poller) deliver(ctx context.Context, local models.ChatMessage) (models.ChatMessage, error) {
	stored, err := p.api.SendMessage(ctx, p.conversationID, local.Body)

	p.mu.Lock()
	idx := p.indexLocked(local.LocalID)
	if err != nil {
		if idx >= 0 {
			p.messages[idx].State = models.MessageFailed
			local = p.messages[idx]
		}
		p.mu.Unlock()
		p.notify()
		metrics.ChatMessagesSent.WithLabelValues("error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("conversation_id", p.conversationID).Msg("Chat message failed to send")
		return local, fmt.Errorf("send message: %w", err)
	}

	msg := *stored
	msg.LocalID = local.LocalID
	msg.State = models.MessageSent
	switch {
	case msg.ID != "" && p.seen.IsDuplicate(msg.ID):
		// A poll already delivered it; drop the optimistic copy.
		if idx >= 0 {
			p.removeLocked(idx)
		}
	case idx >= 0:
		p.messages[idx] = msg
	default:
		p.appendLocked(msg)
	}
	p.mu.Unlock()
	p.notify()
	metrics.ChatMessagesSent.WithLabelValues("ok").Inc()
	return msg, nil
}

func (p *Poller) tick(ctx context.Context, _ int) bool {
	if _, err := p.Poll(ctx); err != nil {
		if ctx.Err() != nil {
			return true
		}
		if backend.IsUnauthorized(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("conversation_id", p.conversationID).Msg("Chat polling stopped")
			return true
		}
		logging.Ctx(ctx).Debug().Err(err).Str("conversation_id", p.conversationID).Msg("Chat poll failed")
	}
	return false
}

func (p *Poller) appendLocked(msg models.ChatMessage) {
	p.messages = append(p.messages, msg)
	if over := len(p.messages) - maxMessages; over > 0 {
		p.messages = append(p.messages[:0:0], p.messages[over:]...)
	}
}

func (p *Poller) removeLocked(idx int) {
	p.messages = append(p.messages[:idx:idx], p.messages[idx+1:]...)
}

func (p *Poller) indexLocked(localID string) int {
	if localID == "" {
		return -1
	}
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (p *Poller) notify() {
	if p.publish == nil {
		return
	}
	p.publish(Update{ConversationID: p.conversationID, Messages: p.Messages()})
}
