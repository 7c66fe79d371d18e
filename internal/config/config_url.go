// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// validateBaseURL accepts http(s) URLs with an optional path prefix but no
// query or fragment, since endpoint paths are appended to it. Bearer tokens
// are forwarded to this URL, so requireTLS rejects plain http.
func validateBaseURL(rawURL, fieldName string, requireTLS bool) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return fmt.Errorf("%s should not contain query parameters or fragments", fieldName)
	}
	if parsedURL.User != nil {
		return fmt.Errorf("%s must not embed credentials", fieldName)
	}
	if requireTLS && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s must use https in production", fieldName)
	}
	return nil
}

// validateHostPort checks a host:port address such as 127.0.0.1:6379.
func validateHostPort(addr, fieldName string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s must be host:port: %w", fieldName, err)
	}
	if host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got: %q", fieldName, port)
	}
	return nil
}

// validatePath checks an in-app navigation target such as /subscription/plans.
func validatePath(path, fieldName string) error {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return fmt.Errorf("%s must be an absolute in-app path, got: %q", fieldName, path)
	}
	return nil
}

// validateNATSURL supports nats://, tls://, ws:// and wss:// schemes.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}
