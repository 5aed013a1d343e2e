// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/aljaroudi/t3lepathy/internal/util"
)

// Config mirrors the [log] section of the config file.
type Config struct {
	Level     string
	Color     string // auto, always or never
	AddSource bool
	File      string // empty writes to stderr

	// LevelVar, when set, receives the parsed level and gates every
	// record, so the level can change while the logger is in use.
	LevelVar *slog.LevelVar
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New builds a logger from cfg. The returned closer closes the log file,
// if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), util.DirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer, isTTY = f, f, false
	}

	opts := DefaultOptions()
	opts.Level = level
	if cfg.LevelVar != nil {
		cfg.LevelVar.Set(level)
		opts.Level = cfg.LevelVar
	}
	opts.NoColor = noColor(cfg.Color, isTTY)
	if cfg.AddSource {
		opts.Source = SourceShort
	}
	return slog.New(NewHandler(out, opts)), closer, nil
}

// noColor decides whether to strip colors. NO_COLOR always wins.
func noColor(mode string, isTTY bool) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	switch mode {
	case "always":
		return false
	case "never":
		return true
	default:
		return !isTTY
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(NewHandler(io.Discard, Options{Level: slog.Level(100)}))
}

// Err is the attribute used for errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// =============================================================================
// REQUEST IDS
// =============================================================================

type contextKey string

const requestIDKey contextKey = "request_id"

var requestSeq atomic.Int64

// NextRequestID returns a process-unique increasing id.
func NextRequestID() int64 {
	return requestSeq.Add(1)
}

// ContextWithRequestID tags ctx so records logged with it carry id.
func ContextWithRequestID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(requestIDKey).(int64)
	return id, ok
}
