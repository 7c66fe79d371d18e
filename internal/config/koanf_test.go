// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Manifest.TTL != 60*time.Second {
		t.Errorf("Manifest.TTL = %v, want 60s", cfg.Manifest.TTL)
	}
	if cfg.Access.RetryAttempts != 3 {
		t.Errorf("Access.RetryAttempts = %d, want 3", cfg.Access.RetryAttempts)
	}
	if cfg.Access.ExpiringSoonDays != 7 {
		t.Errorf("Access.ExpiringSoonDays = %d, want 7", cfg.Access.ExpiringSoonDays)
	}
	if cfg.Payment.AutoCheckInterval != 10*time.Second {
		t.Errorf("Payment.AutoCheckInterval = %v, want 10s", cfg.Payment.AutoCheckInterval)
	}
	if cfg.Payment.MaxAutoChecks != 20 {
		t.Errorf("Payment.MaxAutoChecks = %d, want 20", cfg.Payment.MaxAutoChecks)
	}
	if cfg.Payment.TimeoutRetries != 3 {
		t.Errorf("Payment.TimeoutRetries = %d, want 3", cfg.Payment.TimeoutRetries)
	}
	if cfg.Pending.PendingPath != "/subscription/pending" {
		t.Errorf("Pending.PendingPath = %q", cfg.Pending.PendingPath)
	}
	if cfg.Marker.Backend != "badger" {
		t.Errorf("Marker.Backend = %q, want badger", cfg.Marker.Backend)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"UGFLIX_API_URL", "backend.base_url"},
		{"BREAKER_FAILURE_THRESHOLD", "backend.breaker.failure_threshold"},
		{"MANIFEST_TTL", "manifest.ttl"},
		{"ACCESS_AUTO_REDIRECT", "access.auto_redirect"},
		{"PAYMENT_MAX_AUTO_CHECKS", "payment.max_auto_checks"},
		{"payment_auto_check_interval", "payment.auto_check_interval"},
		{"MARKER_BACKEND", "marker.backend"},
		{"NATS_URL", "events.url"},
		{"HTTP_PORT", "server.port"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"LOG_LEVEL", "logging.level"},

		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := envTransformFunc(tt.input); result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("config.yaml in working directory", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if err := os.WriteFile("config.yaml", []byte("manifest:\n  ttl: 30s\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		defer os.Remove("config.yaml")

		if result := findConfigFile(); result != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", result)
		}
	})

	t.Run("CONFIG_PATH takes priority", func(t *testing.T) {
		custom := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(custom, []byte("{}\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv(ConfigPathEnvVar, custom)
		if result := findConfigFile(); result != custom {
			t.Errorf("findConfigFile() = %q, want %q", result, custom)
		}
	})
}

func TestLoadWithKoanf_Layering(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	configPath := filepath.Join(tmpDir, "gateway.yaml")
	yamlContent := `
backend:
  base_url: https://api.ugflix.test/api/v1
manifest:
  ttl: 45s
payment:
  max_auto_checks: 12
marker:
  backend: memory
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("PAYMENT_MAX_AUTO_CHECKS", "15")
	t.Setenv("CORS_ORIGINS", "https://ugflix.com, https://tv.ugflix.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.ugflix.test/api/v1" {
		t.Errorf("Backend.BaseURL = %q (file layer not applied)", cfg.Backend.BaseURL)
	}
	if cfg.Manifest.TTL != 45*time.Second {
		t.Errorf("Manifest.TTL = %v, want 45s", cfg.Manifest.TTL)
	}
	if cfg.Payment.MaxAutoChecks != 15 {
		t.Errorf("Payment.MaxAutoChecks = %d, want 15 (env must override file)", cfg.Payment.MaxAutoChecks)
	}
	if cfg.Payment.AutoCheckInterval != 10*time.Second {
		t.Errorf("Payment.AutoCheckInterval = %v, want default 10s", cfg.Payment.AutoCheckInterval)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://tv.ugflix.com" {
		t.Errorf("Security.CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadWithKoanf_InvalidFails(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("MANIFEST_TTL", "0s")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error for zero manifest TTL")
	}
}
