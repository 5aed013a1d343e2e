// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// TestConfig_Default tests that the defaults are valid.
func TestConfig_Default(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Stream.FlushIntervalMs != 250 || cfg.Stream.FlushBytes != 1024 {
		t.Errorf("stream defaults = %+v", cfg.Stream)
	}
	if got := cfg.FlushInterval(); got != 250*time.Millisecond {
		t.Errorf("FlushInterval() = %v", got)
	}
	if cfg.Server.Addr != "127.0.0.1:7878" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(*Config) {}, false},
		{"flush every chunk", func(c *Config) { c.Stream.FlushIntervalMs = 0 }, false},
		{"negative flush interval", func(c *Config) { c.Stream.FlushIntervalMs = -1 }, true},
		{"zero flush bytes", func(c *Config) { c.Stream.FlushBytes = 0 }, true},
		{"timeout too long", func(c *Config) { c.Gateway.TimeoutSecs = 601 }, true},
		{"too many retries", func(c *Config) { c.Gateway.MaxRetries = 11 }, true},
		{"bad base url", func(c *Config) { c.Gateway.OpenAIBaseURL = "ftp://example.com" }, true},
		{"local base url", func(c *Config) { c.Gateway.OpenAIBaseURL = "http://127.0.0.1:9000/v1" }, false},
		{"addr without port", func(c *Config) { c.Server.Addr = "localhost" }, true},
		{"remote addr refused", func(c *Config) { c.Server.Addr = "0.0.0.0:7878" }, true},
		{"remote addr allowed", func(c *Config) {
			c.Server.Addr = "0.0.0.0:7878"
			c.Server.AllowRemote = true
			c.Server.Token = "0123456789abcdef"
		}, false},
		{"remote addr without token", func(c *Config) {
			c.Server.Addr = "0.0.0.0:7878"
			c.Server.AllowRemote = true
		}, true},
		{"localhost addr", func(c *Config) { c.Server.Addr = "localhost:9000" }, false},
		{"unlimited server rate", func(c *Config) { c.Server.RequestsPerSecond = 0 }, false},
		{"negative server rate", func(c *Config) { c.Server.RequestsPerSecond = -1 }, true},
		{"invalid log level", func(c *Config) { c.Log.Level = "verbose" }, true},
		{"invalid color", func(c *Config) { c.Log.Color = "sometimes" }, true},
		{"invalid theme", func(c *Config) { c.UI.Theme = "invalid" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.UI.Theme = "neon"

	err := cfg.Validate()
	var errs ValidateErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Validate() error type = %T, want ValidateErrors", err)
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	if !strings.Contains(err.Error(), "2 validation errors") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[log]\nlevel = \"debug\"\n\n[stream]\nflush_interval_ms = 0\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.FlushInterval() >= 0 {
		t.Errorf("FlushInterval() = %v, want negative (every chunk)", cfg.FlushInterval())
	}
	if cfg.Gateway.MaxRetries != 3 {
		t.Errorf("Gateway.MaxRetries = %d, want default 3", cfg.Gateway.MaxRetries)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && os.PathSeparator == '/' {
		t.Errorf("permissions = %o, want narrowed to 0600", perm)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"loud\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() with invalid level should fail")
	}

	if err := os.WriteFile(path, []byte("[log\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed TOML should fail")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("T3_LOG_LEVEL", "warn")
	t.Setenv("T3_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("T3_FLUSH_BYTES", "64")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Stream.FlushBytes != 64 {
		t.Errorf("Stream.FlushBytes = %d, want 64", cfg.Stream.FlushBytes)
	}
}

func TestLoad_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("T3_FLUSH_BYTES", "lots")
	if _, err := Load(filepath.Join(t.TempDir(), "config.toml")); err == nil {
		t.Error("Load() with non-numeric T3_FLUSH_BYTES should fail")
	}
}

func TestEnvAPIKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	keys, err := EnvAPIKeys()
	if err != nil {
		t.Fatalf("EnvAPIKeys() error = %v", err)
	}
	want := model.APIKeys{
		model.ProviderOpenAI:    "sk-env",
		model.ProviderAnthropic: "sk-ant-env",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("EnvAPIKeys() = %v, want %v", keys, want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("T3_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("T3_DOTENV_PROBE", "")
	os.Unsetenv("T3_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("T3_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("T3_DOTENV_PROBE = %q, want from-file", got)
	}
}

// TestConfig_SaveRoundTrip tests that a saved file loads back unchanged.
func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.UI.Theme = "dark"
	cfg.Gateway.GoogleBaseURL = "http://127.0.0.1:8080"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if os.PathSeparator == '/' && info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

// TestConfig_GetSet tests Get and Set methods with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("log.level")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "info" {
		t.Errorf("Get('log.level') = %v, want 'info'", val)
	}

	tests := []struct {
		key   string
		value string
		want  interface{}
	}{
		{"ui.theme", "light", "light"},
		{"stream.flush_bytes", "2048", 2048},
		{"gateway.requests_per_second", "0.5", 0.5},
		{"server.allow_remote", "yes", true},
	}
	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err != nil {
			t.Fatalf("Set(%s) error = %v", tt.key, err)
		}
		got, _ := cfg.Get(tt.key)
		if got != tt.want {
			t.Errorf("Get(%s) after Set = %v (%T), want %v", tt.key, got, got, tt.want)
		}
	}

	if _, err := cfg.Get("invalid.key"); err == nil {
		t.Error("Get() with invalid key should return error")
	}
	if err := cfg.Set("stream.flush_bytes", "many"); err == nil {
		t.Error("Set() with non-integer should return error")
	}
	if err := cfg.Set("log", "debug"); err == nil {
		t.Error("Set() on a section should return error")
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	cfg := Default()
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) error = %v", k, err)
		}
	}
	for _, want := range []string{"version", "storage.data_dir", "stream.flush_interval_ms", "ui.grounding"} {
		found := false
		for _, k := range keys {
			found = found || k == want
		}
		if !found {
			t.Errorf("Keys() missing %q", want)
		}
	}
}

// TestConfig_Clone tests that Clone creates an independent copy.
func TestConfig_Clone(t *testing.T) {
	original := Default()
	clone := original.Clone()
	clone.Log.Level = "debug"

	if original.Log.Level != "info" {
		t.Error("Clone should create an independent copy")
	}
}

func TestConfig_Paths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.DataDir = dir

	db, err := cfg.DatabasePath()
	if err != nil {
		t.Fatal(err)
	}
	if db != filepath.Join(dir, "t3lepathy.db") {
		t.Errorf("DatabasePath() = %q", db)
	}

	abs := filepath.Join(dir, "elsewhere.db")
	cfg.Storage.Database = abs
	if db, _ := cfg.DatabasePath(); db != abs {
		t.Errorf("absolute DatabasePath() = %q, want %q", db, abs)
	}

	costs, _ := cfg.CostsDir()
	if costs != filepath.Join(dir, "costs") {
		t.Errorf("CostsDir() = %q", costs)
	}
}

func TestConfig_GatewayOptions(t *testing.T) {
	cfg := Default()
	cfg.Gateway.TimeoutSecs = 5
	cfg.Gateway.AnthropicBaseURL = "http://127.0.0.1:1"

	opts := cfg.GatewayOptions()
	if opts.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", opts.Timeout)
	}
	if opts.AnthropicBaseURL != "http://127.0.0.1:1" {
		t.Errorf("AnthropicBaseURL = %q", opts.AnthropicBaseURL)
	}
	if opts.GoogleBaseURL == "" {
		t.Error("GoogleBaseURL should keep its default")
	}
}

func TestWatch_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			if err == nil {
				got <- cfg
			}
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	next := Default()
	next.Log.Level = "debug"
	if err := next.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded Log.Level = %q, want debug", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after save")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch() = %v", err)
	}
}
