// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// SourceMode selects how the calling file is printed.
type SourceMode int

const (
	// SourceNone omits the caller.
	SourceNone SourceMode = iota
	// SourceShort prints the base name, e.g. orchestrator.go:112.
	SourceShort
	// SourceLong prints the full path.
	SourceLong
)

// Options configure a Handler.
type Options struct {
	// Level is the minimum level written. Nil means slog.LevelInfo.
	Level slog.Leveler
	// TimeFormat formats the record time.
	TimeFormat string
	// Source selects the caller format.
	Source SourceMode
	// MsgPrefix is written before the message.
	MsgPrefix string
	// NoColor strips ANSI escapes from the output.
	NoColor bool
}

// DefaultOptions returns info level, DateTime timestamps and no caller.
func DefaultOptions() Options {
	return Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.DateTime,
		MsgPrefix:  "| ",
	}
}

// =============================================================================
// HANDLER
// =============================================================================

// Handler is a slog.Handler writing colored single-line records.
type Handler struct {
	opts   Options
	groups []string
	attrs  []slog.Attr

	mu  *sync.Mutex
	out io.Writer
}

// NewHandler creates a handler writing to out.
func NewHandler(out io.Writer, opts Options) *Handler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.DateTime
	}
	return &Handler{opts: opts, out: out, mu: &sync.Mutex{}}
}

func (h *Handler) clone() *Handler {
	return &Handler{
		opts:   h.opts,
		groups: append([]string(nil), h.groups...),
		attrs:  append([]slog.Attr(nil), h.attrs...),
		mu:     h.mu,
		out:    h.out,
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Colors are always emitted; Handle strips them when NoColor is set.
var (
	faint   = colored(color.Faint)
	magenta = colored(color.FgMagenta)
	cyan    = colored(color.FgCyan)
	red     = colored(color.FgRed)

	badges = map[slog.Level]*color.Color{
		slog.LevelDebug: colored(color.BgCyan, color.FgHiWhite),
		slog.LevelInfo:  colored(color.BgGreen, color.FgHiWhite),
		slog.LevelWarn:  colored(color.BgYellow, color.FgHiWhite),
		slog.LevelError: colored(color.BgRed, color.FgHiWhite),
	}
)

func colored(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	bf := bufPool.Get().(*bytes.Buffer)
	bf.Reset()
	defer bufPool.Put(bf)

	if !r.Time.IsZero() {
		bf.WriteString(faint.Sprint(r.Time.Format(h.opts.TimeFormat)))
		bf.WriteByte(' ')
	}

	if id, ok := RequestIDFromContext(ctx); ok {
		bf.WriteString(magenta.Sprintf("#%d ", id))
	}

	bf.WriteString(levelBadge(r.Level))
	bf.WriteByte(' ')

	if h.opts.Source != SourceNone && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		file := f.File
		if h.opts.Source == SourceShort {
			file = filepath.Base(file)
		}
		fmt.Fprintf(bf, "%s:%d ", file, f.Line)
	}

	bf.WriteString(h.opts.MsgPrefix)
	bf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	writeAttr := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		key := prefix + a.Key
		c := cyan
		if strings.Contains(a.Key, "err") {
			c = red
		}
		bf.WriteByte(' ')
		bf.WriteString(c.Sprintf("%s=", key))
		bf.WriteString(formatValue(a.Value))
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	bf.WriteByte('\n')

	if h.opts.NoColor {
		stripANSI(bf)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(bf.Bytes())
	return err
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// WithAttrs implements slog.Handler. Attributes added after a group are
// printed with the group prefix current at the time of the record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	h2.attrs = append(h2.attrs, attrs...)
	return h2
}

func levelBadge(l slog.Level) string {
	name := fmt.Sprintf("%-5s", l.String())
	switch {
	case l >= slog.LevelError:
		return badges[slog.LevelError].Sprint(name)
	case l >= slog.LevelWarn:
		return badges[slog.LevelWarn].Sprint(name)
	case l >= slog.LevelInfo:
		return badges[slog.LevelInfo].Sprint(name)
	default:
		return badges[slog.LevelDebug].Sprint(name)
	}
}

func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " \t\n\"=")) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

var bufPool = sync.Pool{
	New: func() interface{} { return &bytes.Buffer{} },
}

// ansi matches color escape sequences.
var ansi = regexp.MustCompile("[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

func stripANSI(bf *bytes.Buffer) {
	cleaned := ansi.ReplaceAll(bf.Bytes(), nil)
	bf.Reset()
	bf.Write(cleaned)
}
