// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete t3lepathy configuration. User preferences that
// change at runtime (models, keys, reply length, system prompt) live in the
// settings store instead.
type Config struct {
	Version string `toml:"version" json:"version"`

	Storage StorageConfig `toml:"storage" json:"storage"`
	Stream  StreamConfig  `toml:"stream" json:"stream"`
	Gateway GatewayConfig `toml:"gateway" json:"gateway"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// StorageConfig locates local data.
type StorageConfig struct {
	// DataDir holds the database, cost history and logs. Empty means ~/.t3lepathy.
	DataDir string `toml:"data_dir" json:"data_dir" env:"DATA_DIR"`
	// Database is the SQLite file name, relative to DataDir unless absolute.
	Database string `toml:"database" json:"database" env:"DATABASE"`
}

// StreamConfig batches the store writes of a streaming reply.
type StreamConfig struct {
	// FlushIntervalMs is the longest a streamed chunk waits before being saved.
	// 0 saves every chunk.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" env:"FLUSH_INTERVAL_MS"`
	// FlushBytes saves early once this much text has accumulated.
	FlushBytes int `toml:"flush_bytes" json:"flush_bytes" env:"FLUSH_BYTES"`
}

// GatewayConfig configures the provider clients.
type GatewayConfig struct {
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs" env:"GATEWAY_TIMEOUT_SECS"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries" env:"GATEWAY_MAX_RETRIES"`
	MaxTokens         int     `toml:"max_tokens" json:"max_tokens"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`

	// Base URLs; empty uses the public API.
	OpenAIBaseURL    string `toml:"openai_base_url" json:"openai_base_url" env:"OPENAI_BASE_URL"`
	GoogleBaseURL    string `toml:"google_base_url" json:"google_base_url" env:"GOOGLE_BASE_URL"`
	AnthropicBaseURL string `toml:"anthropic_base_url" json:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr" env:"SERVER_ADDR"`
	// AllowRemote permits a non-loopback listen address.
	AllowRemote bool `toml:"allow_remote" json:"allow_remote" env:"SERVER_ALLOW_REMOTE"`
	// Token, when set, is required as a bearer token on every /api request.
	Token string `toml:"token" json:"-" env:"SERVER_TOKEN"`
	// RequestsPerSecond and Burst limit each client. Zero disables limiting.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level" env:"LOG_LEVEL"`
	// Color is auto, always or never.
	Color string `toml:"color" json:"color" env:"LOG_COLOR"`
	// AddSource adds the calling file and line.
	AddSource bool `toml:"add_source" json:"add_source"`
	// File receives logs instead of stderr. The TUI always logs to a file.
	File string `toml:"file" json:"file" env:"LOG_FILE"`
}

// UIConfig configures the terminal front ends.
type UIConfig struct {
	// Theme is dark, light or auto.
	Theme          string `toml:"theme" json:"theme" env:"THEME"`
	ShowCost       bool   `toml:"show_cost" json:"show_cost"`
	ShowTokens     bool   `toml:"show_tokens" json:"show_tokens"`
	RenderMarkdown bool   `toml:"render_markdown" json:"render_markdown"`
	// Grounding is the initial web search setting of a session.
	Grounding bool `toml:"grounding" json:"grounding"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Storage: StorageConfig{
			Database: "t3lepathy.db",
		},
		Stream: StreamConfig{
			FlushIntervalMs: 250,
			FlushBytes:      1024,
		},
		Gateway: GatewayConfig{
			TimeoutSecs:       int(gateway.DefaultTimeout / time.Second),
			MaxRetries:        gateway.DefaultMaxRetries,
			MaxTokens:         gateway.DefaultMaxTokens,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:7878",
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Log: LogConfig{
			Level: "info",
			Color: "auto",
		},
		UI: UIConfig{
			Theme:          "auto",
			ShowCost:       true,
			ShowTokens:     true,
			RenderMarkdown: true,
		},
	}
}

// SetDefaults fills zero values with their defaults. Stream.FlushIntervalMs
// keeps 0, which means every chunk is saved.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Storage.Database == "" {
		c.Storage.Database = d.Storage.Database
	}
	if c.Stream.FlushBytes == 0 {
		c.Stream.FlushBytes = d.Stream.FlushBytes
	}
	if c.Gateway.TimeoutSecs == 0 {
		c.Gateway.TimeoutSecs = d.Gateway.TimeoutSecs
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = d.Gateway.MaxRetries
	}
	if c.Gateway.MaxTokens == 0 {
		c.Gateway.MaxTokens = d.Gateway.MaxTokens
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = d.Gateway.Burst
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = d.Server.Burst
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Color == "" {
		c.Log.Color = d.Log.Color
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the default configuration and data directory, ~/.t3lepathy.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".t3lepathy"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	return Dir()
}

// DatabasePath returns the resolved SQLite file path.
func (c *Config) DatabasePath() (string, error) {
	db, err := expandHome(c.Storage.Database)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(db) {
		return db, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, db), nil
}

// CostsDir returns the cost history directory.
func (c *Config) CostsDir() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "costs"), nil
}

// LogPath returns the log file path, defaulting to t3lepathy.log in the
// data directory.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return expandHome(c.Log.File)
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "t3lepathy.log"), nil
}

// FlushInterval returns the stream flush interval. Zero is returned as a
// negative duration, which the chat orchestrator reads as "every chunk".
func (c *Config) FlushInterval() time.Duration {
	if c.Stream.FlushIntervalMs <= 0 {
		return -1
	}
	return time.Duration(c.Stream.FlushIntervalMs) * time.Millisecond
}

// GatewayOptions maps the gateway section onto client options.
func (c *Config) GatewayOptions() gateway.Options {
	opts := gateway.DefaultOptions()
	opts.Timeout = time.Duration(c.Gateway.TimeoutSecs) * time.Second
	opts.MaxRetries = c.Gateway.MaxRetries
	opts.MaxTokens = c.Gateway.MaxTokens
	opts.RequestsPerSecond = c.Gateway.RequestsPerSecond
	opts.Burst = c.Gateway.Burst
	if c.Gateway.OpenAIBaseURL != "" {
		opts.OpenAIBaseURL = c.Gateway.OpenAIBaseURL
	}
	if c.Gateway.GoogleBaseURL != "" {
		opts.GoogleBaseURL = c.Gateway.GoogleBaseURL
	}
	if c.Gateway.AnthropicBaseURL != "" {
		opts.AnthropicBaseURL = c.Gateway.AnthropicBaseURL
	}
	return opts
}

func expandHome(path string) (string, error) {
	if path == "~" || len(path) > 1 && path[0] == '~' && os.IsPathSeparator(path[1]) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load reads the TOML file at path (the default path when empty), applies
// environment overrides, fills defaults and validates. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{}
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeFile decodes path into cfg. A missing file leaves cfg untouched;
// sections absent from the file keep the defaults.
func decodeFile(cfg *Config, path string) error {
	*cfg = *Default()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// ensureSecurePermissions narrows a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// Save writes the configuration to path as TOML with 0600 permissions.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	buf.WriteString("# t3lepathy configuration\n")
	buf.WriteString("# Models, API keys and prompts are stored in the database; see `t3lepathy keys`.\n\n")
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	shown := *c
	if shown.Server.Token != "" {
		shown.Server.Token = "********"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(shown); err != nil {
		return err.Error()
	}
	return buf.String()
}
