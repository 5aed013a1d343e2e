// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv *Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	var sb strings.Builder
	title := conv.Chat.GetTitle()

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "chat: %s\n", conv.Chat.ID)
		fmt.Fprintf(&sb, "date: %s\n", conv.Chat.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		if models := modelNames(conv.Messages); len(models) > 0 {
			fmt.Fprintf(&sb, "models: [%s]\n", strings.Join(models, ", "))
		}
		if n := conv.Usage.TotalTokens(); n > 0 {
			fmt.Fprintf(&sb, "tokens: %d\n", n)
		}
		if conv.Usage.Cost > 0 {
			fmt.Fprintf(&sb, "cost_usd: %.6f\n", conv.Usage.Cost)
		}
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: t3lepathy\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range conv.Messages {
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatShortTimestamp(msg.Date))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}

		body, err := e.formatContent(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		sb.WriteString(body)
		sb.WriteString("\n\n")

		if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
			if stats := formatMessageStats(msg); stats != "" {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", stats)
			}
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from t3lepathy on %s*\n", e.options.now().Format("January 2, 2006 at 3:04 PM"))
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatContent(content model.Content) (string, error) {
	blocks := make([]string, 0, len(content))
	for _, part := range content {
		switch p := part.(type) {
		case model.Text:
			blocks = append(blocks, strings.TrimSpace(p.Text))
		case model.Image:
			blocks = append(blocks, fmt.Sprintf("![image](%s)", p.ImageDataURI))
		case model.File:
			blocks = append(blocks, fmt.Sprintf("> Attachment: `%s` (%s)", p.Filename, p.MediaType))
		default:
			return "", model.UnknownPart(part)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// formatMessageStats describes the model, tokens and price of one message.
func formatMessageStats(msg model.Message) string {
	var parts []string
	if name := msg.ModelName(); name != "" {
		parts = append(parts, name)
	}
	if msg.Tokens != nil {
		parts = append(parts, util.FormatTokens(*msg.Tokens)+" tokens")
	}
	if cost, ok := model.MessagePrice(msg); ok {
		parts = append(parts, util.FormatCost(cost))
	}
	return strings.Join(parts, " | ")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

var markdownEscaper = strings.NewReplacer(
	"#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]",
)

// escapeMarkdown escapes the characters that break a heading.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// escapeYAML quotes a front matter value when it holds special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return "\"" + s + "\""
	}
	return s
}
