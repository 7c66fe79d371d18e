// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ugflix-gateway/internal/config"
)

// APIPrefix is the path prefix the fake backend serves under.
const APIPrefix = "/api/v1/"

// Response is one programmed reply.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
	// Delay holds the reply back; it ends early if the client goes away.
	Delay time.Duration
}

// Capture is a request received by the fake backend.
type Capture struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// FakeBackend serves programmed responses for backend routes.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string][]Response
	hits     map[string]int
	captures []Capture
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		routes: make(map[string][]Response),
		hits:   make(map[string]int),
	}
	fb.Server = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.Server.Close)
	return fb
}

func routeKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, "/")
}

// On programs responses for method and path (relative to APIPrefix). Calls
// are answered in order and the final response repeats.
func (f *FakeBackend) On(method, path string, responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[routeKey(method, path)] = responses
}

// Hits reports how many requests method and path received.
func (f *FakeBackend) Hits(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[routeKey(method, path)]
}

// Captures returns a copy of every request received so far.
func (f *FakeBackend) Captures() []Capture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Capture, len(f.captures))
	copy(out, f.captures)
	return out
}

// URL is the base URL to configure the backend client with.
func (f *FakeBackend) URL() string {
	return f.Server.URL + strings.TrimSuffix(APIPrefix, "/")
}

// Config returns a backend config pointing at the fake with pacing disabled
// and a breaker that is hard to trip.
func (f *FakeBackend) Config() *config.BackendConfig {
	return &config.BackendConfig{
		BaseURL:           f.URL(),
		Timeout:           2 * time.Second,
		RateLimitCooldown: 30 * time.Second,
		MaxCooldown:       time.Minute,
		Breaker: config.BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 100,
		},
	}
}

func (f *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body) //nolint:errcheck // best effort capture
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	key := routeKey(r.Method, path)

	f.mu.Lock()
	f.hits[key]++
	f.captures = append(f.captures, Capture{
		Method: r.Method,
		Path:   path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	queue := f.routes[key]
	var resp Response
	switch {
	case len(queue) == 0:
		resp = Response{Status: http.StatusNotFound, Body: []byte(`{"code":0,"message":"no route"}`)}
	case len(queue) == 1:
		resp = queue[0]
	default:
		resp = queue[0]
		f.routes[key] = queue[1:]
	}
	f.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body) //nolint:errcheck
	}
}

// Envelope wraps data in the backend's success envelope.
func Envelope(data interface{}) []byte {
	out, err := json.Marshal(map[string]interface{}{
		"code":    1,
		"message": "ok",
		"data":    data,
	})
	if err != nil {
		panic(err)
	}
	return out
}

// OK is a 200 response carrying data in the success envelope.
func OK(data interface{}) Response {
	return Response{Status: http.StatusOK, Body: Envelope(data)}
}

// Raw is a 200 response with a literal body.
func Raw(body string) Response {
	return Response{Status: http.StatusOK, Body: []byte(body)}
}

// Status is an error response with an empty failure envelope.
func Status(code int) Response {
	return Response{Status: code, Body: []byte(`{"code":0,"message":"` + http.StatusText(code) + `"}`)}
}

// TooManyRequests is a 429 carrying Retry-After in seconds.
func TooManyRequests(retryAfter string) Response {
	r := Status(http.StatusTooManyRequests)
	r.Header = http.Header{"Retry-After": []string{retryAfter}}
	return r
}

// Slow delays resp by d.
func Slow(resp Response, d time.Duration) Response {
	resp.Delay = d
	return resp
}
