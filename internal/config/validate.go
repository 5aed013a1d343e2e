// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []*ValidationError

func (errs ValidateErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(errs), strings.Join(msgs, "\n  - "))
}

var (
	validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validColors = map[string]bool{"auto": true, "always": true, "never": true}
	validThemes = map[string]bool{"dark": true, "light": true, "auto": true}
)

// Validate checks every field and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, &ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Stream.FlushIntervalMs < 0 {
		add("stream.flush_interval_ms", c.Stream.FlushIntervalMs, "must be 0 or positive")
	}
	if c.Stream.FlushBytes < 1 {
		add("stream.flush_bytes", c.Stream.FlushBytes, "must be positive")
	}

	if c.Gateway.TimeoutSecs < 1 || c.Gateway.TimeoutSecs > 600 {
		add("gateway.timeout_secs", c.Gateway.TimeoutSecs, "must be between 1 and 600")
	}
	if c.Gateway.MaxRetries < 0 || c.Gateway.MaxRetries > 10 {
		add("gateway.max_retries", c.Gateway.MaxRetries, "must be between 0 and 10")
	}
	if c.Gateway.MaxTokens < 1 {
		add("gateway.max_tokens", c.Gateway.MaxTokens, "must be positive")
	}
	if c.Gateway.RequestsPerSecond < 0 {
		add("gateway.requests_per_second", c.Gateway.RequestsPerSecond, "must be 0 (unlimited) or positive")
	}
	if c.Gateway.Burst < 1 {
		add("gateway.burst", c.Gateway.Burst, "must be positive")
	}
	for field, raw := range map[string]string{
		"gateway.openai_base_url":    c.Gateway.OpenAIBaseURL,
		"gateway.google_base_url":    c.Gateway.GoogleBaseURL,
		"gateway.anthropic_base_url": c.Gateway.AnthropicBaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(field, raw, "must be an http or https URL")
		}
	}

	host, _, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		add("server.addr", c.Server.Addr, "must be host:port")
	} else if !c.Server.AllowRemote && !isLoopback(host) {
		add("server.addr", c.Server.Addr, "non-loopback address requires server.allow_remote")
	} else if !isLoopback(host) && len(c.Server.Token) < 16 {
		add("server.token", "", "remote access requires a token of at least 16 characters")
	}

	if c.Server.RequestsPerSecond < 0 {
		add("server.requests_per_second", c.Server.RequestsPerSecond, "must be 0 (unlimited) or positive")
	}
	if c.Server.Burst < 1 {
		add("server.burst", c.Server.Burst, "must be positive")
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	if !validColors[c.Log.Color] {
		add("log.color", c.Log.Color, "must be auto, always or never")
	}
	if !validThemes[c.UI.Theme] {
		add("ui.theme", c.UI.Theme, "must be dark, light or auto")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
