// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package models

// Delivery states of a chat message as seen by the gateway.
const (
	MessageSent    = "sent"
	MessagePending = "pending"
	MessageFailed  = "failed"
)

// ChatMessage is a message in a buyer/seller conversation.
// LocalID and State are gateway-only and never sent to the backend.
type ChatMessage struct {
	ID             ID         `json:"id"`
	ConversationID ID         `json:"conversation_id"`
	SenderID       ID         `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      *Timestamp `json:"created_at,omitempty"`
	LocalID        string     `json:"local_id,omitempty"`
	State          string     `json:"state,omitempty"`
}

// SendMessageRequest is the body of POST chat/conversations/{id}/messages.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}
