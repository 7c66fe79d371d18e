// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/validation"
)

const (
	// maxErrorBodySize limits how much of an error response is read.
	maxErrorBodySize = 64 * 1024
	// maxResponseSize limits successful response bodies.
	maxResponseSize = 4 * 1024 * 1024
)

// UserClient issues backend calls on behalf of one user.
type UserClient struct {
	client *Client
	token  string

	mu            sync.Mutex
	cooldownUntil time.Time
}

// call describes one backend request.
type call struct {
	method   string
	endpoint string // metrics and error label
	path     string // relative to the base URL
	query    url.Values
	body     any

	// strict requires the {code, message, data} envelope with code == 1.
	strict bool
	// nullable accepts a null data payload and returns (nil, nil).
	nullable bool
}

// CooldownRemaining returns how long calls will keep failing fast after a 429.
func (u *UserClient) CooldownRemaining() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cooldownUntil.IsZero() {
		return 0
	}
	remaining := u.cooldownUntil.Sub(u.client.clock.Now())
	if remaining <= 0 {
		u.cooldownUntil = time.Time{}
		return 0
	}
	return remaining
}

func (u *UserClient) startCooldown(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	until := u.client.clock.Now().Add(d)
	if until.After(u.cooldownUntil) {
		u.cooldownUntil = until
	}
	metrics.BackendCooldowns.Inc()
}

// do executes c and returns the unwrapped data payload.
func (u *UserClient) do(ctx context.Context, c call) (payload json.RawMessage, err error) {
	start := u.client.clock.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.RecordBackendRequest(c.endpoint, outcome, u.client.clock.Since(start))
	}()

	if remaining := u.CooldownRemaining(); remaining > 0 {
		metrics.BackendRateLimitSuppressed.WithLabelValues(c.endpoint).Inc()
		return nil, &Error{
			Kind:       KindRateLimited,
			Endpoint:   c.endpoint,
			Message:    "cooling down after rate limit",
			RetryAfter: remaining,
		}
	}

	if err := u.client.limiter.Wait(ctx); err != nil {
		kind := classifyTransportError(ctx, err)
		if ctx.Err() == nil {
			// The limiter refused because the deadline would pass first.
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Endpoint: c.endpoint, Err: err}
	}

	body, err := u.client.execute(func() ([]byte, error) {
		return u.roundTrip(ctx, c)
	})
	if err != nil {
		var be *Error
		if errors.As(err, &be) && be.Endpoint == "" {
			be.Endpoint = c.endpoint
		}
		return nil, err
	}

	payload, err = unwrapEnvelope(body, c.strict)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Endpoint: c.endpoint, Err: err}
	}
	if isNull(payload) {
		if c.nullable {
			return nil, nil
		}
		return nil, &Error{Kind: KindMalformed, Endpoint: c.endpoint, Message: "missing data"}
	}
	return payload, nil
}

func (u *UserClient) roundTrip(ctx context.Context, c call) ([]byte, error) {
	req, err := u.newRequest(ctx, c)
	if err != nil {
		return nil, &Error{Kind: KindClient, Endpoint: c.endpoint, Err: err}
	}

	resp, err := u.client.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(ctx, err), Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := u.client.cooldownFor(resp.Header.Get("Retry-After"))
		u.startCooldown(delay)
		logging.Ctx(ctx).Warn().
			Str("endpoint", c.endpoint).
			Dur("cooldown", delay).
			Msg("Backend rate limited (HTTP 429), cooling down")
		return nil, &Error{
			Kind:       KindRateLimited,
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			RetryAfter: delay,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readBodyForError(resp.Body)
		return nil, &Error{
			Kind:       kindForStatus(resp.StatusCode),
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(ctx, err), Endpoint: c.endpoint, Err: err}
	}
	return body, nil
}

func (u *UserClient) newRequest(ctx context.Context, c call) (*http.Request, error) {
	target := u.client.baseURL.ResolveReference(&url.URL{
		Path:     strings.TrimLeft(c.path, "/"),
		RawQuery: c.query.Encode(),
	})

	var body io.Reader = http.NoBody
	if c.body != nil {
		encoded, err := json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	} else if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return req, nil
}

// cooldownFor parses Retry-After (delta-seconds or HTTP-date) and falls back
// to the configured cool-down. The result never exceeds maxCooldown.
func (c *Client) cooldownFor(header string) time.Duration {
	delay := c.defaultCooldown
	header = strings.TrimSpace(header)
	if header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			delay = time.Duration(seconds) * time.Second
		} else if at, err := http.ParseTime(header); err == nil {
			if d := at.Sub(c.clock.Now()); d > 0 {
				delay = d
			}
		}
	}
	if c.maxCooldown > 0 && delay > c.maxCooldown {
		delay = c.maxCooldown
	}
	if delay <= 0 {
		delay = time.Second
	}
	return delay
}

// unwrapEnvelope returns the data payload of a backend response.
//
// With strict set the body must be {code: 1, data: ...}. Otherwise an
// envelope is unwrapped when present and a bare payload is returned as is.
func unwrapEnvelope(body []byte, strict bool) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	if trimmed[0] != '{' {
		if strict {
			return nil, errors.New("response is not an envelope object")
		}
		if !json.Valid(trimmed) {
			return nil, errors.New("response is not valid JSON")
		}
		return trimmed, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	code, hasCode := fields["code"]
	if !hasCode {
		if strict {
			return nil, errors.New("response has no code field")
		}
		if data, ok := fields["data"]; ok {
			return data, nil
		}
		return trimmed, nil
	}

	if !isSuccessCode(code) {
		var msg string
		_ = json.Unmarshal(fields["message"], &msg)
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, fmt.Errorf("code %s: %s", strings.TrimSpace(string(code)), msg)
	}
	return fields["data"], nil
}

// isSuccessCode reports whether raw is the JSON number 1. A quoted "1" is a
// different type and does not count.
func isSuccessCode(raw json.RawMessage) bool {
	var code float64
	if err := json.Unmarshal(raw, &code); err != nil {
		return false
	}
	return code == 1
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeInto unmarshals payload into out and validates its shape.
func decodeInto(endpoint string, payload json.RawMessage, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Kind: KindMalformed, Endpoint: endpoint, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if verr := validation.ValidateStruct(out); verr != nil {
		return &Error{Kind: KindMalformed, Endpoint: endpoint, Err: verr}
	}
	return nil
}

// readBodyForError reads at most maxErrorBodySize bytes of an error response.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// errorMessage extracts message or detail from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Detail != "":
		return payload.Detail
	default:
		return payload.Error
	}
}
