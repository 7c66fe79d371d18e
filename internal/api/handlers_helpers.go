// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/chat"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/models"
	"github.com/tomtom215/ugflix-gateway/internal/payment"
	"github.com/tomtom215/ugflix-gateway/internal/session"
	"github.com/tomtom215/ugflix-gateway/internal/subscription"
	"github.com/tomtom215/ugflix-gateway/internal/validation"
)

// Error codes. See models.APIError.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeUnauthorized     = "UNAUTHORIZED"
	codeNotFound         = "NOT_FOUND"
	codeRateLimited      = "RATE_LIMITED"
	codeUpstream         = "UPSTREAM_UNAVAILABLE"
	codeMalformed        = "UPSTREAM_MALFORMED"
	codeUpstreamRejected = "UPSTREAM_REJECTED"
	codePurchasePending  = "PURCHASE_PENDING"
	codeConflict         = "CONFLICT"
	codeInternal         = "INTERNAL_ERROR"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// sanitizeLogValue removes control characters from strings to prevent log
// injection.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData sends a success envelope. start is when the handler began.
func respondData(w http.ResponseWriter, status int, data interface{}, start time.Time, cached bool) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	})
}

func errorResponse(apiErr *models.APIError) *models.APIResponse {
	return &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}
	respondJSON(w, status, errorResponse(&models.APIError{Code: code, Message: message}))
}

// respondFailure maps err to a status and error code and writes it.
// Expected outcomes are logged at debug; the rest at warn or error.
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr, retryAfter := classifyError(err)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}

	ev := logging.Ctx(r.Context()).Debug()
	switch {
	case status >= 500 && status != http.StatusBadGateway && status != http.StatusServiceUnavailable:
		ev = logging.Ctx(r.Context()).Error()
	case status >= 500:
		ev = logging.Ctx(r.Context()).Warn()
	}
	ev.Str("code", apiErr.Code).
		Int("status", status).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Str("error", sanitizeLogValue(err.Error())).
		Msg("Request failed")

	respondJSON(w, status, errorResponse(apiErr))
}

// classifyError maps gateway and backend errors onto HTTP responses.
func classifyError(err error) (int, *models.APIError, time.Duration) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		v := verr.ToAPIError()
		return http.StatusBadRequest, &models.APIError{Code: v.Code, Message: v.Message, Details: v.Details}, 0
	}

	var pending *subscription.PendingPurchaseError
	if errors.As(err, &pending) {
		details := map[string]interface{}{"redirect": pending.Redirect}
		if pending.Subscription != nil {
			details["pending_subscription"] = pending.Subscription
		}
		return http.StatusConflict, &models.APIError{
			Code:    codePurchasePending,
			Message: "A purchase is already awaiting payment",
			Details: details,
		}, 0
	}

	switch {
	case errors.Is(err, session.ErrNoToken), errors.Is(err, session.ErrTokenExpired):
		return http.StatusUnauthorized, &models.APIError{Code: codeUnauthorized, Message: err.Error()}, 0
	case errors.Is(err, session.ErrRegistryClosed), errors.Is(err, session.ErrEngineClosed):
		return http.StatusServiceUnavailable, &models.APIError{Code: codeUpstream, Message: "Gateway is shutting down", Retryable: true}, 0
	case errors.Is(err, payment.ErrCheckInFlight):
		return http.StatusConflict, &models.APIError{Code: codeConflict, Message: "A payment check is already running", Retryable: true}, 0
	case errors.Is(err, payment.ErrTerminal), errors.Is(err, payment.ErrRetryNotAllowed):
		return http.StatusConflict, &models.APIError{Code: codeConflict, Message: err.Error()}, 0
	case errors.Is(err, payment.ErrClosed), errors.Is(err, chat.ErrClosed), errors.Is(err, chat.ErrUnknownMessage):
		return http.StatusNotFound, &models.APIError{Code: codeNotFound, Message: err.Error()}, 0
	}

	var be *backend.Error
	retryAfter := time.Duration(0)
	if errors.As(err, &be) {
		retryAfter = be.RetryAfter
	}

	switch backend.KindOf(err) {
	case backend.KindUnauthorized:
		return http.StatusUnauthorized, &models.APIError{Code: codeUnauthorized, Message: "The backend rejected the token"}, 0
	case backend.KindNotFound:
		return http.StatusNotFound, &models.APIError{Code: codeNotFound, Message: "Not found"}, 0
	case backend.KindRateLimited:
		return http.StatusTooManyRequests, &models.APIError{
			Code:      codeRateLimited,
			Message:   "Too many requests, please wait before trying again",
			Retryable: true,
		}, retryAfter
	case backend.KindMalformed:
		return http.StatusBadGateway, &models.APIError{Code: codeMalformed, Message: "The backend sent an unexpected response"}, 0
	case backend.KindTimeout, backend.KindNetwork, backend.KindServer:
		return http.StatusBadGateway, &models.APIError{Code: codeUpstream, Message: "The backend is unavailable", Retryable: true}, 0
	case backend.KindCircuitOpen, backend.KindCanceled:
		return http.StatusServiceUnavailable, &models.APIError{Code: codeUpstream, Message: "The backend is unavailable", Retryable: true}, 0
	case backend.KindClient:
		msg := "The backend rejected the request"
		if be != nil && be.Message != "" {
			msg = be.Message
		}
		return http.StatusBadRequest, &models.APIError{Code: codeUpstreamRejected, Message: msg}, 0
	}

	return http.StatusInternalServerError, &models.APIError{Code: codeInternal, Message: "Internal error"}, 0
}

// validateRequest validates a struct using go-playground/validator.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// validatePathParam checks a URL parameter against a validator tag.
func validatePathParam(w http.ResponseWriter, name, value, tag string) bool {
	if verr := validation.ValidateVar(name, value, tag); verr != nil {
		v := verr.ToAPIError()
		respondJSON(w, http.StatusBadRequest, errorResponse(&models.APIError{Code: v.Code, Message: v.Message, Details: v.Details}))
		return false
	}
	return true
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, codeValidation, "Request body too large", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid JSON body", nil)
		return false
	}
	if apiErr := validateRequest(dst); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse(apiErr))
		return false
	}
	return true
}

// boolParam reports whether a query parameter is set to a true value.
func boolParam(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

// requestContext bounds handler work by the engine lifetime as well as the
// request, so an evicted session stops its backend calls.
func requestContext(r *http.Request, e *session.Engine) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(e.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
