// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/models"
)

// Endpoint labels used in metrics and errors.
const (
	EndpointManifest           = "manifest"
	EndpointMySubscription     = "my_subscription"
	EndpointPaymentStatus      = "payment_status"
	EndpointCheckPaymentStatus = "check_payment_status"
	EndpointRetryPayment       = "retry_payment"
	EndpointPending            = "pending"
	EndpointPlans              = "plans"
	EndpointSubscribe          = "subscribe"
	EndpointChatList           = "chat_list"
	EndpointChatSend           = "chat_send"
)

// GetManifest fetches GET manifest. The envelope must carry code 1 and a
// subscription object.
func (u *UserClient) GetManifest(ctx context.Context) (*models.ManifestData, error) {
	return fetchOne[models.ManifestData](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointManifest,
		path:     "manifest",
		strict:   true,
	})
}

// GetMySubscription returns the current subscription, or nil when the user
// has none.
func (u *UserClient) GetMySubscription(ctx context.Context) (*models.Subscription, error) {
	return fetchOne[models.Subscription](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointMySubscription,
		path:     "subscriptions/my-subscription",
		nullable: true,
	})
}

// GetPaymentStatus fetches GET subscriptions/payment-status/{trackingID}.
func (u *UserClient) GetPaymentStatus(ctx context.Context, trackingID string) (*models.PaymentStatusData, error) {
	return fetchOne[models.PaymentStatusData](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointPaymentStatus,
		path:     "subscriptions/payment-status/" + url.PathEscape(trackingID),
		strict:   true,
	})
}

// CheckPaymentStatus asks the backend to re-query the payment provider.
func (u *UserClient) CheckPaymentStatus(ctx context.Context, trackingID string) (*models.PaymentStatusData, error) {
	return fetchOne[models.PaymentStatusData](ctx, u, call{
		method:   http.MethodPost,
		endpoint: EndpointCheckPaymentStatus,
		path:     "subscriptions/check-payment-status",
		body:     map[string]string{"order_tracking_id": trackingID},
	})
}

// RetryPayment starts a new payment attempt for an existing subscription.
func (u *UserClient) RetryPayment(ctx context.Context, subscriptionID string) (*models.RetryPaymentResult, error) {
	return fetchOne[models.RetryPaymentResult](ctx, u, call{
		method:   http.MethodPost,
		endpoint: EndpointRetryPayment,
		path:     "subscriptions/retry-payment",
		body:     map[string]string{"subscription_id": subscriptionID},
	})
}

// GetPendingSubscription reports whether a purchase is awaiting payment.
func (u *UserClient) GetPendingSubscription(ctx context.Context) (*models.PendingCheck, error) {
	return fetchOne[models.PendingCheck](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointPending,
		path:     "subscriptions/pending",
	})
}

// ListPlans returns the purchasable plans.
func (u *UserClient) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return fetchList[models.Plan](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointPlans,
		path:     "subscriptions/plans",
		nullable: true,
	})
}

// Subscribe starts a purchase of planID.
func (u *UserClient) Subscribe(ctx context.Context, planID string) (*models.PurchaseResult, error) {
	return fetchOne[models.PurchaseResult](ctx, u, call{
		method:   http.MethodPost,
		endpoint: EndpointSubscribe,
		path:     "subscriptions/subscribe",
		body:     map[string]string{"plan_id": planID},
	})
}

// ListMessages returns messages in a conversation newer than afterID.
// An empty afterID returns the most recent page.
func (u *UserClient) ListMessages(ctx context.Context, conversationID, afterID string) ([]models.ChatMessage, error) {
	query := url.Values{}
	if afterID != "" {
		query.Set("after", afterID)
	}
	return fetchList[models.ChatMessage](ctx, u, call{
		method:   http.MethodGet,
		endpoint: EndpointChatList,
		path:     "chat/conversations/" + url.PathEscape(conversationID) + "/messages",
		query:    query,
		nullable: true,
	})
}

// SendMessage posts a message and returns the stored copy.
func (u *UserClient) SendMessage(ctx context.Context, conversationID, body string) (*models.ChatMessage, error) {
	return fetchOne[models.ChatMessage](ctx, u, call{
		method:   http.MethodPost,
		endpoint: EndpointChatSend,
		path:     "chat/conversations/" + url.PathEscape(conversationID) + "/messages",
		body:     models.SendMessageRequest{Body: body},
	})
}

func fetchOne[T any](ctx context.Context, u *UserClient, c call) (*T, error) {
	payload, err := u.do(ctx, c)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	var out T
	if err := decodeInto(c.endpoint, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func fetchList[T any](ctx context.Context, u *UserClient, c call) ([]T, error) {
	payload, err := u.do(ctx, c)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return []T{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &Error{Kind: KindMalformed, Endpoint: c.endpoint, Err: err}
	}
	out := make([]T, len(raw))
	for i := range raw {
		if err := decodeInto(c.endpoint, raw[i], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
