// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ugflix-gateway/config.yaml",
	"/etc/ugflix-gateway/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Defaults returns the built-in configuration. Tests use it as a base.
func Defaults() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "http://127.0.0.1:8000/api/v1",
			Timeout:           15 * time.Second,
			RateLimitRPS:      20,
			RateLimitBurst:    40,
			RateLimitCooldown: 30 * time.Second,
			MaxCooldown:       5 * time.Minute,
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Manifest: ManifestConfig{
			TTL: 60 * time.Second,
		},
		Access: AccessConfig{
			RetryAttempts:    3,
			RetryBaseDelay:   time.Second,
			AutoRedirect:     false,
			PlansPath:        "/subscription/plans",
			ExpiringSoonDays: 7,
		},
		Payment: PaymentConfig{
			AutoCheckInterval: 10 * time.Second,
			MaxAutoChecks:     20,
			TimeoutRetries:    3,
			TimeoutRetryDelay: 2 * time.Second,
			RedirectDelay:     5 * time.Second,
			SuccessPath:       "/account/subscription",
			PlansPath:         "/subscription/plans",
		},
		Pending: PendingConfig{
			PendingPath: "/subscription/pending",
		},
		Chat: ChatConfig{
			PollInterval: 5 * time.Second,
			SeenCapacity: 1000,
		},
		Widget: WidgetConfig{
			RefreshInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			IdleTimeout:     30 * time.Minute,
			MaxSessions:     10000,
			JanitorInterval: time.Minute,
		},
		Marker: MarkerConfig{
			Backend:   "badger",
			Path:      "/data/markers",
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "ugflix:pending_subscription_check:",
			TTL:       30 * time.Minute,
		},
		Events: EventsConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "ugflix.payments",
		},
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			RateLimitReqs:     120,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with ENV > File > Defaults precedence
// and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that already arrived as slices (YAML) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	// Backend
	"ugflix_api_url":              "backend.base_url",
	"backend_timeout":             "backend.timeout",
	"backend_rate_limit_rps":      "backend.rate_limit_rps",
	"backend_rate_limit_burst":    "backend.rate_limit_burst",
	"backend_rate_limit_cooldown": "backend.rate_limit_cooldown",
	"backend_max_cooldown":        "backend.max_cooldown",
	"breaker_max_requests":        "backend.breaker.max_requests",
	"breaker_interval":            "backend.breaker.interval",
	"breaker_timeout":             "backend.breaker.timeout",
	"breaker_failure_threshold":   "backend.breaker.failure_threshold",

	// Manifest cache
	"manifest_ttl": "manifest.ttl",

	// Access guard
	"access_retry_attempts":     "access.retry_attempts",
	"access_retry_base_delay":   "access.retry_base_delay",
	"access_auto_redirect":      "access.auto_redirect",
	"access_plans_path":         "access.plans_path",
	"access_expiring_soon_days": "access.expiring_soon_days",

	// Payment poller
	"payment_auto_check_interval": "payment.auto_check_interval",
	"payment_max_auto_checks":     "payment.max_auto_checks",
	"payment_timeout_retries":     "payment.timeout_retries",
	"payment_timeout_retry_delay": "payment.timeout_retry_delay",
	"payment_redirect_delay":      "payment.redirect_delay",
	"payment_success_path":        "payment.success_path",
	"payment_plans_path":          "payment.plans_path",

	// Pending pre-check
	"pending_path": "pending.pending_path",

	// Chat and widget
	"chat_poll_interval":      "chat.poll_interval",
	"chat_seen_capacity":      "chat.seen_capacity",
	"widget_refresh_interval": "widget.refresh_interval",

	// Sessions
	"session_idle_timeout":     "session.idle_timeout",
	"session_max_sessions":     "session.max_sessions",
	"session_janitor_interval": "session.janitor_interval",

	// Marker store
	"marker_backend":        "marker.backend",
	"marker_path":           "marker.path",
	"marker_redis_addr":     "marker.redis_addr",
	"marker_redis_password": "marker.redis_password",
	"marker_redis_db":       "marker.redis_db",
	"marker_key_prefix":     "marker.key_prefix",
	"marker_ttl":            "marker.ttl",

	// Events
	"events_enabled":        "events.enabled",
	"nats_url":              "events.url",
	"events_subject_prefix": "events.subject_prefix",

	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Security
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
//
//   - UGFLIX_API_URL -> backend.base_url
//   - PAYMENT_MAX_AUTO_CHECKS -> payment.max_auto_checks
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
