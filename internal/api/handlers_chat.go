// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/ugflix-gateway/internal/chat"
	"github.com/tomtom215/ugflix-gateway/internal/models"
)

func conversationParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "conversationID")
	return id, validatePathParam(w, "conversation_id", id, "required,tracking_id")
}

// chatPoller returns the running poller for the conversation in the URL.
func chatPoller(w http.ResponseWriter, r *http.Request) (*chat.Poller, bool) {
	id, ok := conversationParam(w, r)
	if !ok {
		return nil, false
	}
	p, err := engineFrom(r.Context()).Chat(id)
	if err != nil {
		respondFailure(w, r, err)
		return nil, false
	}
	return p, true
}

// ChatMessages returns the conversation history and starts polling it.
// New messages are pushed on the websocket stream.
//
// @Summary List chat messages
// @Tags Chat
// @Produce json
// @Param conversationID path string true "Conversation id"
// @Param poll query bool false "Fetch new messages before answering"
// @Success 200 {object} models.APIResponse{data=[]models.ChatMessage}
// @Failure 400,401,429,502,503 {object} models.APIResponse
// @Router /chats/{conversationID}/messages [get]
func (h *Handler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, ok := chatPoller(w, r)
	if !ok {
		return
	}
	if boolParam(r, "poll") {
		ctx, cancel := requestContext(r, engineFrom(r.Context()))
		defer cancel()
		if _, err := p.Poll(ctx); err != nil {
			respondFailure(w, r, err)
			return
		}
	}
	respondData(w, http.StatusOK, p.Messages(), start, false)
}

// SendChatMessage posts a message. A failed send leaves the message in the
// history as failed so it can be resent.
//
// @Summary Send a chat message
// @Tags Chat
// @Accept json
// @Produce json
// @Param conversationID path string true "Conversation id"
// @Param request body models.SendMessageRequest true "Message"
// @Success 201 {object} models.APIResponse{data=models.ChatMessage}
// @Failure 400,401,429,502,503 {object} models.APIResponse
// @Router /chats/{conversationID}/messages [post]
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, ok := chatPoller(w, r)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := requestContext(r, engineFrom(r.Context()))
	defer cancel()
	msg, err := p.Send(ctx, req.Body)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, msg, start, false)
}

// ResendChatMessage retries a message that failed to send.
//
// @Summary Resend a failed chat message
// @Tags Chat
// @Produce json
// @Param conversationID path string true "Conversation id"
// @Param localID path string true "Local id of the failed message"
// @Success 201 {object} models.APIResponse{data=models.ChatMessage}
// @Failure 400,401,404,429,502,503 {object} models.APIResponse
// @Router /chats/{conversationID}/messages/{localID}/resend [post]
func (h *Handler) ResendChatMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p, ok := chatPoller(w, r)
	if !ok {
		return
	}
	localID := chi.URLParam(r, "localID")
	if !validatePathParam(w, "local_id", localID, "required,uuid") {
		return
	}

	ctx, cancel := requestContext(r, engineFrom(r.Context()))
	defer cancel()
	msg, err := p.Resend(ctx, localID)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, msg, start, false)
}

// StopChat stops polling a conversation.
//
// @Summary Stop polling a conversation
// @Tags Chat
// @Param conversationID path string true "Conversation id"
// @Success 204
// @Failure 400,401,404 {object} models.APIResponse
// @Router /chats/{conversationID} [delete]
func (h *Handler) StopChat(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(w, r)
	if !ok {
		return
	}
	if !engineFrom(r.Context()).StopChat(id) {
		respondError(w, http.StatusNotFound, codeNotFound, "Conversation is not being polled", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
