// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// ErrNilConversation is returned when there is nothing to export.
var ErrNilConversation = errors.New("conversation is nil")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Conversation is the unit of export.
type Conversation struct {
	Chat     model.Chat
	Messages []model.Message
	Usage    telemetry.ChatUsage
}

// New bundles a chat with its messages, ordered oldest first.
func New(chat model.Chat, msgs []model.Message) *Conversation {
	msgs = model.CloneMessages(msgs)
	model.SortMessages(msgs)
	return &Conversation{
		Chat:     chat,
		Messages: msgs,
		Usage:    telemetry.Summarize(chat.ID, msgs),
	}
}

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export renders conv.
	Export(conv *Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the content type of the output.
	MimeType() string
}

// Formats lists the names accepted by ForFormat.
var Formats = []string{"md", "html", "json"}

// ForFormat returns the exporter for a format name.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir receives files written by ExportToFile.
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata adds the header with models, tokens and cost.
	IncludeMetadata bool

	// IncludeTimestamps adds a time to each message.
	IncludeTimestamps bool

	// Theme for HTML export, "light" or "dark".
	Theme string

	// Now stamps the export. Nil uses time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders conv and writes it to a new file in opts.OutputDir.
// It returns the file path.
func ExportToFile(conv *Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if conv == nil {
		return "", ErrNilConversation
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(conv.Chat.GetTitle()),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			return outputPath, fmt.Errorf("exported but could not open: %w", err)
		}
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
	"<", "-", ">", "-", "|", "-",
	" ", "_", "\t", "_", "\n", "_", "\r", "_",
)

// sanitizeFilename makes a title safe as a file name on Windows and Unix.
func sanitizeFilename(s string) string {
	s = util.TruncateWidth(strings.TrimSpace(s), 50)
	s = filenameReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '-'
		}
		return r
	}, s)
	if s == "" {
		return "chat"
	}
	return s
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}

// modelNames lists the distinct models of msgs in first-use order.
func modelNames(msgs []model.Message) []string {
	return lo.Uniq(lo.FilterMap(msgs, func(m model.Message, _ int) (string, bool) {
		name := m.ModelName()
		return name, name != ""
	}))
}
