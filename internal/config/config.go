// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

// Package config loads the gateway configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: explicit mapping table in envTransformFunc
//
// Every interval, retry cap and TTL used by the access and payment state
// machines lives here so tests and deployments can tune them without code
// changes. Config is immutable after Load and safe for concurrent reads.
package config

import (
	"time"
)

// Config holds all gateway configuration.
type Config struct {
	Backend  BackendConfig  `koanf:"backend"`
	Manifest ManifestConfig `koanf:"manifest"`
	Access   AccessConfig   `koanf:"access"`
	Payment  PaymentConfig  `koanf:"payment"`
	Pending  PendingConfig  `koanf:"pending"`
	Chat     ChatConfig     `koanf:"chat"`
	Widget   WidgetConfig   `koanf:"widget"`
	Session  SessionConfig  `koanf:"session"`
	Marker   MarkerConfig   `koanf:"marker"`
	Events   EventsConfig   `koanf:"events"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// BackendConfig configures the client for the UgFlix REST backend.
type BackendConfig struct {
	// BaseURL is the API root, e.g. https://api.ugflix.com/api/v1. Paths are allowed.
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitRPS and RateLimitBurst pace outgoing requests (token bucket).
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// RateLimitCooldown is the fail-fast window after a 429 without Retry-After.
	RateLimitCooldown time.Duration `koanf:"rate_limit_cooldown"`
	// MaxCooldown caps server-provided Retry-After values.
	MaxCooldown time.Duration `koanf:"max_cooldown"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the circuit breaker around backend calls.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// ManifestConfig configures the per-session manifest cache.
type ManifestConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// AccessConfig configures the access guard.
type AccessConfig struct {
	RetryAttempts    int           `koanf:"retry_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	AutoRedirect     bool          `koanf:"auto_redirect"`
	PlansPath        string        `koanf:"plans_path"`
	ExpiringSoonDays int           `koanf:"expiring_soon_days"`
}

// PaymentConfig configures the payment confirmation poller.
type PaymentConfig struct {
	AutoCheckInterval time.Duration `koanf:"auto_check_interval"`
	MaxAutoChecks     int           `koanf:"max_auto_checks"`
	TimeoutRetries    int           `koanf:"timeout_retries"`
	TimeoutRetryDelay time.Duration `koanf:"timeout_retry_delay"`
	RedirectDelay     time.Duration `koanf:"redirect_delay"`
	SuccessPath       string        `koanf:"success_path"`
	PlansPath         string        `koanf:"plans_path"`
}

// PendingConfig configures the pending-subscription pre-check.
type PendingConfig struct {
	PendingPath string `koanf:"pending_path"`
}

// ChatConfig configures conversation polling.
type ChatConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	SeenCapacity int           `koanf:"seen_capacity"`
}

// WidgetConfig configures the subscription widget refresher.
type WidgetConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// SessionConfig configures the per-user engine registry.
type SessionConfig struct {
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	MaxSessions     int           `koanf:"max_sessions"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// MarkerConfig configures the pending-purchase marker store.
type MarkerConfig struct {
	// Backend is badger, redis or memory.
	Backend       string        `koanf:"backend"`
	Path          string        `koanf:"path"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	TTL           time.Duration `koanf:"ttl"`
}

// EventsConfig configures the payment outcome publisher.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// SecurityConfig configures inbound rate limiting and CORS.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
