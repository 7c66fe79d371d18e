// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/models"
	"github.com/tomtom215/ugflix-gateway/internal/testinfra"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type stubAPI struct {
	mu      sync.Mutex
	pages   [][]models.ChatMessage
	listErr error
	afters  []string

	sendResult *models.ChatMessage
	sendErr    error
	sent       []string
}

func (s *stubAPI) ListMessages(_ context.Context, _, afterID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afters = append(s.afters, afterID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *stubAPI) SendMessage(_ context.Context, _, body string) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	msg := *s.sendResult
	msg.Body = body
	return &msg, nil
}

func (s *stubAPI) lastAfter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.afters[len(s.afters)-1]
}

func msg(id, body string) models.ChatMessage {
	return models.ChatMessage{ID: models.ID(id), ConversationID: "c1", SenderID: "u2", Body: body, CreatedAt: models.TimestampPtr(testNow)}
}

func newPoller(api API) *Poller {
	return NewPoller("c1", api, Config{PollInterval: 5 * time.Second, SeenCapacity: 100, Clock: clockwork.NewFakeClockAt(testNow)}, nil)
}

func bodies(msgs []models.ChatMessage) string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body + ":" + string(m.State)
	}
	return strings.Join(out, ",")
}

func TestPoll_Dedup(t *testing.T) {
	t.Parallel()

	api := &stubAPI{pages: [][]models.ChatMessage{
		{msg("1", "hi"), msg("2", "there")},
		{msg("2", "there"), msg("3", "again")},
	}}
	p := newPoller(api)
	ctx := context.Background()

	added, err := p.Poll(ctx)
	if err != nil || len(added) != 2 {
		t.Fatalf("first Poll() = %d, %v", len(added), err)
	}
	added, err = p.Poll(ctx)
	if err != nil || len(added) != 1 || added[0].ID != "3" {
		t.Fatalf("second Poll() = %+v, %v", added, err)
	}
	if got := api.lastAfter(); got != "2" {
		t.Errorf("after = %q, want 2", got)
	}
	if got, want := bodies(p.Messages()), "hi:sent,there:sent,again:sent"; got != want {
		t.Errorf("Messages() = %s, want %s", got, want)
	}
}

func TestSend_ReplacesOptimistic(t *testing.T) {
	t.Parallel()

	api := &stubAPI{sendResult: &models.ChatMessage{ID: "10", ConversationID: "c1", SenderID: "u1"}}
	var updates []Update
	var mu sync.Mutex
	p := NewPoller("c1", api, Config{Clock: clockwork.NewFakeClockAt(testNow)}, func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	got, err := p.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.ID != "10" || got.State != models.MessageSent || got.LocalID == "" {
		t.Errorf("Send() = %+v", got)
	}
	if msgs := p.Messages(); len(msgs) != 1 || msgs[0].ID != "10" {
		t.Errorf("Messages() = %+v", msgs)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) < 2 || updates[0].Messages[0].State != models.MessagePending {
		t.Errorf("first update should show the pending message: %+v", updates)
	}
}

func TestSend_PollAlreadyDelivered(t *testing.T) {
	t.Parallel()

	api := &stubAPI{
		pages:      [][]models.ChatMessage{{msg("10", "hello")}},
		sendResult: &models.ChatMessage{ID: "10", ConversationID: "c1"},
	}
	p := newPoller(api)
	ctx := context.Background()

	if _, err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if _, err := p.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msgs := p.Messages(); len(msgs) != 1 {
		t.Errorf("message shown %d times, want once: %+v", len(msgs), msgs)
	}
}

func TestSend_FailureThenResend(t *testing.T) {
	t.Parallel()

	api := &stubAPI{sendErr: &backend.Error{Kind: backend.KindServer, Endpoint: backend.EndpointChatSend}}
	p := newPoller(api)
	ctx := context.Background()

	local, err := p.Send(ctx, "hello")
	if err == nil {
		t.Fatal("Send() should fail")
	}
	if local.State != models.MessageFailed {
		t.Errorf("State = %s, want failed", local.State)
	}

	if _, err := p.Resend(ctx, "nope"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Resend(unknown) error = %v", err)
	}

	api.mu.Lock()
	api.sendErr = nil
	api.sendResult = &models.ChatMessage{ID: "11", ConversationID: "c1"}
	api.mu.Unlock()

	got, err := p.Resend(ctx, local.LocalID)
	if err != nil {
		t.Fatalf("Resend() error = %v", err)
	}
	if got.ID != "11" || got.State != models.MessageSent {
		t.Errorf("Resend() = %+v", got)
	}
	if msgs := p.Messages(); len(msgs) != 1 || msgs[0].LocalID != local.LocalID {
		t.Errorf("Messages() = %+v", msgs)
	}
	if _, err := p.Resend(ctx, local.LocalID); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Resend(sent) error = %v", err)
	}
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	api := &stubAPI{}
	p := newPoller(api)
	for _, body := range []string{"", strings.Repeat("x", 4001)} {
		if _, err := p.Send(context.Background(), body); err == nil {
			t.Errorf("Send(len %d) should fail validation", len(body))
		}
	}
	if len(api.sent) != 0 || len(p.Messages()) != 0 {
		t.Error("invalid messages must not be sent or shown")
	}
}

func TestLoop_StopsOnUnauthorized(t *testing.T) {
	t.Parallel()

	api := &stubAPI{listErr: &backend.Error{Kind: backend.KindUnauthorized, Endpoint: backend.EndpointChatList}}
	p := newPoller(api)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(p.Close)

	deadline := time.Now().Add(5 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("poller kept running after unauthorized")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	p := newPoller(&stubAPI{})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Close()
	if p.Running() {
		t.Error("Running() after Close")
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
	if _, err := p.Send(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
}

func TestPoller_AgainstBackend(t *testing.T) {
	t.Parallel()

	fb := testinfra.NewFakeBackend(t)
	fb.On(http.MethodGet, "chat/conversations/c1/messages",
		testinfra.OK([]map[string]interface{}{{"id": 1, "conversation_id": 1, "sender_id": 2, "body": "hi"}}),
	)
	client, err := backend.New(fb.Config())
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	p := newPoller(client.ForUser("token"))

	added, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(added) != 1 || added[0].ID != "1" || added[0].Body != "hi" {
		t.Errorf("Poll() = %+v", added)
	}
}
