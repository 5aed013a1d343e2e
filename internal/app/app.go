// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires configuration, logging, storage, settings, the model
// gateway and the chat orchestrator into one value shared by the CLI, the
// TUI and the HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/config"
	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/logger"
	"github.com/aljaroudi/t3lepathy/internal/service"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/settings"
	"github.com/aljaroudi/t3lepathy/internal/storage"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
)

// LogTarget selects where logs go.
type LogTarget int

const (
	// LogToFile writes to the configured log file. Used by interactive
	// commands that own the terminal.
	LogToFile LogTarget = iota
	// LogToStderr writes to stderr. Used by serve and verbose commands.
	LogToStderr
)

// Options configures Open.
type Options struct {
	// ConfigPath is the TOML file; empty uses the default path.
	ConfigPath string

	// DotEnv files loaded before the config. Nil loads ".env".
	DotEnv []string

	// LogLevel overrides the configured level when set.
	LogLevel string
	Log      LogTarget

	// Gateway replaces the provider router. Tests only.
	Gateway gateway.Gateway
}

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Store      *storage.Store
	Settings   *settings.Service
	Gateway    gateway.Gateway
	State      *session.State
	Chat       *chat.Orchestrator
	Tracker    *telemetry.CostTracker

	// LogLevel gates Logger and follows config reloads.
	LogLevel *slog.LevelVar

	logCloser     io.Closer
	levelOverride bool
	closeOnce     sync.Once
	closeErr      error
}

// Open loads configuration and starts every component. Stored chats are
// not loaded; call Chat.Load when the command needs them.
func Open(ctx context.Context, opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.DotEnv...); err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, ConfigPath: path}
	if err := a.openLogger(opts); err != nil {
		return nil, err
	}
	if err := a.openComponents(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openLogger(opts Options) error {
	lc := logger.Config{
		Level:     a.Config.Log.Level,
		Color:     a.Config.Log.Color,
		AddSource: a.Config.Log.AddSource,
		LevelVar:  new(slog.LevelVar),
	}
	if opts.LogLevel != "" {
		lc.Level = opts.LogLevel
	}
	if opts.Log == LogToFile {
		path, err := a.Config.LogPath()
		if err != nil {
			return err
		}
		lc.File = path
	}
	log, closer, err := logger.New(lc)
	if err != nil {
		return fmt.Errorf("failed to start logger: %w", err)
	}
	a.Logger, a.logCloser, a.LogLevel = log, closer, lc.LevelVar
	a.levelOverride = opts.LogLevel != ""
	return nil
}

// Reload applies a changed configuration. The log level takes effect at
// once unless it was overridden on the command line. The names of changed
// sections that need a restart are returned. Reload must not run
// concurrently with readers of Config.
func (a *App) Reload(cfg *config.Config) []string {
	var restart []string
	if !a.levelOverride && cfg.Log.Level != a.Config.Log.Level {
		if level, err := logger.ParseLevel(cfg.Log.Level); err == nil {
			a.LogLevel.Set(level)
			a.Logger.Info("log level changed", "level", cfg.Log.Level)
		}
	}
	if cfg.Server != a.Config.Server {
		restart = append(restart, "server")
	}
	if cfg.Storage != a.Config.Storage {
		restart = append(restart, "storage")
	}
	if cfg.Gateway != a.Config.Gateway {
		restart = append(restart, "gateway")
	}
	if cfg.Stream != a.Config.Stream {
		restart = append(restart, "stream")
	}
	a.Config = cfg
	return restart
}

func (a *App) openComponents(ctx context.Context, opts Options) error {
	dbPath, err := a.Config.DatabasePath()
	if err != nil {
		return err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	a.Store = store

	a.Settings = settings.New(store, a.Logger.With("component", "settings"))
	if err := a.Settings.Load(ctx); err != nil {
		return err
	}
	envKeys, err := config.EnvAPIKeys()
	if err != nil {
		return err
	}
	seeded, err := a.Settings.SeedAPIKeys(ctx, envKeys)
	if err != nil {
		return err
	}
	if len(seeded) > 0 {
		a.Logger.Info("stored api keys from environment", "providers", seeded)
	}

	a.Gateway = opts.Gateway
	if a.Gateway == nil {
		gwOpts := a.Config.GatewayOptions()
		gwOpts.Logger = a.Logger.With("component", "gateway")
		a.Gateway = gateway.NewRouter(gwOpts)
	}

	costsDir, err := a.Config.CostsDir()
	if err != nil {
		return err
	}
	tracker, err := telemetry.NewCostTracker(costsDir)
	if err != nil {
		a.Logger.Warn("cost tracking disabled", "error", err)
	} else {
		a.Tracker = tracker
	}

	a.State = session.New()
	a.Chat = chat.New(store, a.Gateway, a.State, a.Settings, chat.Options{
		FlushInterval: a.Config.FlushInterval(),
		FlushBytes:    a.Config.Stream.FlushBytes,
		Tracker:       a.Tracker,
	}, a.Logger.With("component", "chat"))

	a.Logger.Debug("app ready", "config", a.ConfigPath, "database", dbPath)
	return nil
}

// Close ends the cost session and releases the store and log file. Later
// calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	var closers []interface{ Close() error }
	if a.Tracker != nil {
		closers = append(closers, closerFunc(a.Tracker.EndSession))
	}
	if a.Store != nil {
		closers = append(closers, a.Store)
	}
	if a.logCloser != nil {
		closers = append(closers, a.logCloser)
	}
	return service.CloseAll(closers...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
