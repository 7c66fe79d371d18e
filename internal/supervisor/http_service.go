// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/logging"
)

// DefaultDrainTimeout bounds connection draining when none is configured.
const DefaultDrainTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the API service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// APIServer runs the gateway's HTTP API in the api layer. Every run binds
// its own listener, so a restart after a bind failure retries the port.
// Websocket streams are hijacked connections and are closed by the hub,
// not by the drain.
type APIServer struct {
	server       HTTPServer
	addr         string
	drainTimeout time.Duration

	mu    sync.Mutex
	bound net.Addr
}

// NewAPIServer serves server on addr. drainTimeout bounds the wait for
// in-flight API requests on shutdown.
func NewAPIServer(server HTTPServer, addr string, drainTimeout time.Duration) *APIServer {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &APIServer{server: server, addr: addr, drainTimeout: drainTimeout}
}

// Addr returns the address of the current listener, or nil before the
// first bind.
func (s *APIServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Serve implements suture.Service. It returns ctx.Err() after a clean
// drain and an error when binding, serving or draining fails.
func (s *APIServer) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind api listener %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()
	logging.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve api: %w", err)
		}
		return nil

	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drainTimeout)
		defer cancel()

		start := time.Now()
		if err := s.server.Shutdown(drainCtx); err != nil {
			logging.Warn().Err(err).Dur("drain_timeout", s.drainTimeout).Msg("API server did not drain in time")
			return fmt.Errorf("drain api server: %w", err)
		}
		<-errCh
		logging.Info().Dur("drained_in", time.Since(start)).Msg("API server stopped")
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *APIServer) String() string {
	return "api-server"
}
