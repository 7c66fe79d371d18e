// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypePayment      = "payment"
	MessageTypeSubscription = "subscription"
	MessageTypeChat         = "chat"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type delivery struct {
	userKey string
	msg     Message
}

// Hub routes messages to the connections of one user. A user may have
// several connections (tabs, devices); each receives every message for
// that user.
type Hub struct {
	clients    map[*Client]bool
	byUser     map[string]map[*Client]bool
	deliveries chan delivery
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		deliveries: make(chan delivery, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// RunWithContext runs the hub until ctx is done, then closes every client.
//
// DETERMINISM: Uses priority-based selection:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Deliveries
// so a client registered before a message is sent always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	set := h.byUser[client.userKey]
	if set == nil {
		set = make(map[*Client]bool)
		h.byUser[client.userKey] = set
	}
	set[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Debug().Str("session", client.userKey).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	removed := h.dropLocked(client)
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		logging.Debug().Str("session", client.userKey).Int("total_clients", total).Msg("websocket client disconnected")
	}
}

// dropLocked closes the client's send channel exactly once.
func (h *Hub) dropLocked(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	if set := h.byUser[client.userKey]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.userKey)
		}
	}
	close(client.send)
	if client.done != nil {
		close(client.done)
	}
	metrics.WSConnections.Dec()
	if client.onClose != nil {
		go client.onClose()
	}
	return true
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// logGracefulShutdown closes all clients and logs without an error field;
// cancellation is the expected shutdown path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// deliver sends to the user's clients in ID order. A client whose buffer is
// full is dropped rather than blocking the hub.
func (h *Hub) deliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.byUser[d.userKey]
	if len(set) == 0 {
		return
	}
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- d.msg:
			metrics.WSMessagesSent.Inc()
		default:
			metrics.WSErrors.WithLabelValues("slow_client").Inc()
			h.dropLocked(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		h.dropLocked(client)
	}
}

// Notify queues a message for every connection of userKey. It never
// blocks; when the queue is full the message is dropped, and clients
// resynchronize from the next snapshot.
func (h *Hub) Notify(userKey, msgType string, payload interface{}) {
	select {
	case h.deliveries <- delivery{userKey: userKey, msg: Message{Type: msgType, Data: payload}}:
	default:
		metrics.WSErrors.WithLabelValues("queue_full").Inc()
		logging.Warn().Str("message_type", msgType).Msg("websocket delivery queue full, dropping message")
	}
}

// CloseUser drops every connection of userKey and returns how many were
// closed. Each client gets a close frame.
func (h *Hub) CloseUser(userKey string) int {
	h.mu.Lock()
	set := h.byUser[userKey]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	n := 0
	for _, client := range clients {
		if h.dropLocked(client) {
			n++
		}
	}
	h.mu.Unlock()

	if n > 0 {
		logging.Debug().Str("session", userKey).Int("clients_closed", n).Msg("websocket clients closed for session")
	}
	return n
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserClientCount returns the number of connections for one user.
func (h *Hub) UserClientCount(userKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userKey])
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
