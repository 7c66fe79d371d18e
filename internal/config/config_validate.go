// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateBackend,
		c.validateManifest,
		c.validateAccess,
		c.validatePayment,
		c.validatePending,
		c.validatePollers,
		c.validateSession,
		c.validateMarker,
		c.validateEvents,
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("UGFLIX_API_URL is required")
	}
	if err := validateBaseURL(c.Backend.BaseURL, "UGFLIX_API_URL", c.IsProduction()); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.RateLimitRPS <= 0 || c.Backend.RateLimitBurst < 1 {
		return fmt.Errorf("BACKEND_RATE_LIMIT_RPS must be positive and BACKEND_RATE_LIMIT_BURST at least 1")
	}
	if c.Backend.RateLimitCooldown <= 0 || c.Backend.MaxCooldown < c.Backend.RateLimitCooldown {
		return fmt.Errorf("BACKEND_MAX_COOLDOWN (%v) must be >= BACKEND_RATE_LIMIT_COOLDOWN (%v) and both positive",
			c.Backend.MaxCooldown, c.Backend.RateLimitCooldown)
	}
	if c.Backend.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Backend.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateManifest() error {
	if c.Manifest.TTL <= 0 {
		return fmt.Errorf("MANIFEST_TTL must be positive")
	}
	return nil
}

func (c *Config) validateAccess() error {
	if c.Access.RetryAttempts < 1 || c.Access.RetryAttempts > 10 {
		return fmt.Errorf("ACCESS_RETRY_ATTEMPTS must be between 1 and 10")
	}
	if c.Access.RetryBaseDelay < 0 {
		return fmt.Errorf("ACCESS_RETRY_BASE_DELAY must not be negative")
	}
	if c.Access.ExpiringSoonDays < 1 {
		return fmt.Errorf("ACCESS_EXPIRING_SOON_DAYS must be at least 1")
	}
	return validatePath(c.Access.PlansPath, "ACCESS_PLANS_PATH")
}

func (c *Config) validatePayment() error {
	p := c.Payment
	if p.AutoCheckInterval < time.Second {
		return fmt.Errorf("PAYMENT_AUTO_CHECK_INTERVAL must be at least 1s, got %v", p.AutoCheckInterval)
	}
	if p.MaxAutoChecks < 1 {
		return fmt.Errorf("PAYMENT_MAX_AUTO_CHECKS must be at least 1")
	}
	if p.TimeoutRetries < 1 {
		return fmt.Errorf("PAYMENT_TIMEOUT_RETRIES must be at least 1")
	}
	if p.TimeoutRetryDelay < 0 || p.RedirectDelay < 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_RETRY_DELAY and PAYMENT_REDIRECT_DELAY must not be negative")
	}
	if err := validatePath(p.SuccessPath, "PAYMENT_SUCCESS_PATH"); err != nil {
		return err
	}
	return validatePath(p.PlansPath, "PAYMENT_PLANS_PATH")
}

func (c *Config) validatePending() error {
	return validatePath(c.Pending.PendingPath, "PENDING_PATH")
}

func (c *Config) validatePollers() error {
	if c.Chat.PollInterval < time.Second {
		return fmt.Errorf("CHAT_POLL_INTERVAL must be at least 1s")
	}
	if c.Chat.SeenCapacity < 1 {
		return fmt.Errorf("CHAT_SEEN_CAPACITY must be at least 1")
	}
	if c.Widget.RefreshInterval < c.Manifest.TTL {
		return fmt.Errorf("WIDGET_REFRESH_INTERVAL (%v) must not be shorter than MANIFEST_TTL (%v)",
			c.Widget.RefreshInterval, c.Manifest.TTL)
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.IdleTimeout <= 0 || c.Session.JanitorInterval <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT and SESSION_JANITOR_INTERVAL must be positive")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("SESSION_MAX_SESSIONS must be at least 1")
	}
	return nil
}

var validMarkerBackends = map[string]bool{
	"badger": true,
	"redis":  true,
	"memory": true,
}

func (c *Config) validateMarker() error {
	if !validMarkerBackends[c.Marker.Backend] {
		return fmt.Errorf("MARKER_BACKEND must be one of: badger, redis, memory")
	}
	if c.Marker.TTL <= 0 {
		return fmt.Errorf("MARKER_TTL must be positive")
	}
	switch c.Marker.Backend {
	case "badger":
		if c.Marker.Path == "" {
			return fmt.Errorf("MARKER_PATH is required when MARKER_BACKEND=badger")
		}
	case "redis":
		if c.Marker.RedisAddr == "" {
			return fmt.Errorf("MARKER_REDIS_ADDR is required when MARKER_BACKEND=redis")
		}
		if err := validateHostPort(c.Marker.RedisAddr, "MARKER_REDIS_ADDR"); err != nil {
			return err
		}
	}
	if c.Marker.Backend == "memory" && c.IsProduction() {
		return fmt.Errorf("MARKER_BACKEND=memory is not allowed when ENVIRONMENT=production")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if err := validateNATSURL(c.Events.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.Events.SubjectPrefix == "" || strings.ContainsAny(c.Events.SubjectPrefix, " *>") {
		return fmt.Errorf("EVENTS_SUBJECT_PREFIX must be a literal NATS subject")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateSecurity() error {
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production; " +
			"set specific origins, e.g. CORS_ORIGINS=https://ugflix.com")
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}
