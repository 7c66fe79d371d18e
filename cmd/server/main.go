// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/ugflix-gateway/internal/api"
	"github.com/tomtom215/ugflix-gateway/internal/backend"
	"github.com/tomtom215/ugflix-gateway/internal/config"
	"github.com/tomtom215/ugflix-gateway/internal/events"
	"github.com/tomtom215/ugflix-gateway/internal/logging"
	"github.com/tomtom215/ugflix-gateway/internal/marker"
	"github.com/tomtom215/ugflix-gateway/internal/metrics"
	"github.com/tomtom215/ugflix-gateway/internal/session"
	"github.com/tomtom215/ugflix-gateway/internal/supervisor"
	ws "github.com/tomtom215/ugflix-gateway/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Gateway exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logCfg.Version = version
	logCfg.Environment = cfg.Server.Environment
	logging.Init(logCfg)

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	logging.Info().
		Str("backend", cfg.Backend.BaseURL).
		Msg("Starting UgFlix gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	markers, err := marker.Open(ctx, &cfg.Marker)
	if err != nil {
		return fmt.Errorf("open marker store: %w", err)
	}
	defer func() {
		if err := markers.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close marker store")
		}
	}()
	logging.Info().Str("backend", cfg.Marker.Backend).Msg("Pending-purchase marker store ready")

	publisher, err := events.Open(&cfg.Events)
	if err != nil {
		return fmt.Errorf("open event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()
	if cfg.Events.Enabled {
		logging.Info().Str("url", cfg.Events.URL).Msg("Publishing payment outcomes to NATS")
	}

	client, err := backend.New(&cfg.Backend)
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	hub := ws.NewHub()
	registry := session.NewRegistry(cfg, session.Deps{
		Backend:  client,
		Markers:  markers,
		Events:   publisher,
		Notifier: hub,
	})
	defer registry.Close()

	handler := api.NewHandler(cfg, registry, hub, client, markers)
	router := api.NewRouter(handler, nil)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Websocket streams hijack the connection, so WriteTimeout only
		// bounds ordinary API responses.
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewGatewayTree(
		logging.NewSlogLogger("supervisor"),
		supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout},
		supervisor.GatewayServices{
			Sessions: registry,
			Hub:      hub,
			HTTP:     supervisor.NewAPIServer(server, server.Addr, cfg.Server.ShutdownTimeout),
		},
	)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		serveErr = <-errCh
	case serveErr = <-errCh:
		cancel()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree stopped with error")
	}

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Int("sessions", registry.Len()).Msg("Closing session engines")
	logging.Info().Msg("Gateway stopped gracefully")
	return nil
}
