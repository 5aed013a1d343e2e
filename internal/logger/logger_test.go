// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	opts := DefaultOptions()
	opts.Level = level
	opts.NoColor = true
	return slog.New(NewHandler(buf, opts))
}

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelDebug)

	ctx := ContextWithRequestID(context.Background(), 42)
	log.With("chat", "c1").WithGroup("send").InfoContext(ctx, "reply finished", "tokens", 12, "model", "gpt 4o", Err(errors.New("boom")))

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.NotContains(t, line, "\x1b[")
	assert.Contains(t, line, "#42 ")
	assert.Contains(t, line, "INFO ")
	assert.Contains(t, line, "| reply finished")
	assert.Contains(t, line, "send.chat=c1")
	assert.Contains(t, line, "send.tokens=12")
	assert.Contains(t, line, `send.model="gpt 4o"`)
	assert.Contains(t, line, "send.error=boom")
}

func TestHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelWarn)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN")
}

func TestHandler_Colors(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	slog.New(NewHandler(&buf, opts)).Error("bad")
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestHandler_Source(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.NoColor = true
	opts.Source = SourceShort
	slog.New(NewHandler(&buf, opts)).Info("where")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestErr_Nil(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf, slog.LevelInfo).Info("ok", Err(nil))
	assert.NotContains(t, buf.String(), "error=")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "t3.log")
	log, closer, err := New(Config{Level: "debug", Color: "always", File: path})
	require.NoError(t, err)

	log.Debug("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNew_LevelVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t3.log")
	lv := new(slog.LevelVar)
	log, closer, err := New(Config{Level: "warn", File: path, LevelVar: lv})
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lv.Level())

	log.Info("hidden")
	lv.Set(slog.LevelInfo)
	log.Info("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.True(t, noColor("always", true))

	os.Unsetenv("NO_COLOR")
	assert.False(t, noColor("always", false))
	assert.True(t, noColor("never", true))
	assert.False(t, noColor("auto", true))
	assert.True(t, noColor("auto", false))
}

func TestRequestIDs(t *testing.T) {
	a, b := NextRequestID(), NextRequestID()
	assert.Greater(t, b, a)

	_, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)
}
