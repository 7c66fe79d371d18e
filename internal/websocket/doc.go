// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package websocket pushes per-user state changes to connected clients.

The hub keeps every connection indexed by session key. Components call
Notify(userKey, type, payload) and the hub delivers the message to each
connection of that user, and to nobody else.

Message Types:

  - payment: payment.Snapshot on every watch state change
  - subscription: subscription.WidgetUpdate from the widget refresher
  - chat: chat.Update with the visible conversation history
  - ping / pong: client keepalive

Each message is a JSON object:

	{"type": "payment", "data": {"order_tracking_id": "...", "state": "pending", ...}}

Each client has two goroutines:
  - readPump: reads from the socket, answers ping messages, detects disconnects
  - writePump: writes queued messages and protocol pings

A client that cannot keep up is dropped instead of blocking the hub.
Messages are snapshots, so a reconnecting client only needs the next one.

The hub implements suture.Service and closes every connection on shutdown.
*/
package websocket
