// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/russross/blackfriday"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// Raw HTML in replies is dropped and unsafe link schemes are neutralized.
const (
	markdownHTMLFlags = blackfriday.HTML_SKIP_HTML |
		blackfriday.HTML_SKIP_STYLE |
		blackfriday.HTML_SAFELINK |
		blackfriday.HTML_NOFOLLOW_LINKS |
		blackfriday.HTML_NOREFERRER_LINKS |
		blackfriday.HTML_HREF_TARGET_BLANK |
		blackfriday.HTML_USE_XHTML

	markdownExtensions = blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
		blackfriday.EXTENSION_TABLES |
		blackfriday.EXTENSION_FENCED_CODE |
		blackfriday.EXTENSION_AUTOLINK |
		blackfriday.EXTENSION_STRIKETHROUGH |
		blackfriday.EXTENSION_SPACE_HEADERS
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	title := html.EscapeString(conv.Chat.GetTitle())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", title)
	sb.WriteString("    <meta name=\"generator\" content=\"t3lepathy\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", conv.Chat.CreatedAt.Format(time.RFC3339))
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	fmt.Fprintf(&sb, "        <header class=\"header\">\n            <h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString(e.renderMetadata(conv))
	}
	sb.WriteString("        </header>\n")

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range conv.Messages {
		block, err := e.renderMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		sb.WriteString(block)
	}
	sb.WriteString("        </main>\n")

	fmt.Fprintf(&sb, "        <footer class=\"footer\">Exported from <strong>t3lepathy</strong> on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("    </div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderMetadata(conv *Conversation) string {
	items := []string{
		fmt.Sprintf("<strong>Created:</strong> %s", formatTimestamp(conv.Chat.CreatedAt)),
		fmt.Sprintf("<strong>Messages:</strong> %d", len(conv.Messages)),
	}
	if models := modelNames(conv.Messages); len(models) > 0 {
		items = append(items, fmt.Sprintf("<strong>Models:</strong> %s", html.EscapeString(strings.Join(models, ", "))))
	}
	if n := conv.Usage.TotalTokens(); n > 0 {
		items = append(items, fmt.Sprintf("<strong>Tokens:</strong> %s", util.FormatTokens(n)))
	}
	if conv.Usage.Cost > 0 {
		items = append(items, fmt.Sprintf("<strong>Cost:</strong> %s", util.FormatCost(conv.Usage.Cost)))
	}

	var sb strings.Builder
	sb.WriteString("            <div class=\"metadata\">\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\">%s</span>\n", item)
	}
	sb.WriteString("            </div>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg model.Message) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "            <div class=\"message %s-message\">\n", html.EscapeString(string(msg.Role)))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Date))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	for _, part := range msg.Content {
		switch p := part.(type) {
		case model.Text:
			if msg.Role == model.RoleAssistant {
				sb.Write(renderMarkdown(p.Text))
			} else {
				fmt.Fprintf(&sb, "<p class=\"user-text\">%s</p>\n", html.EscapeString(p.Text))
			}
		case model.Image:
			if !strings.HasPrefix(p.ImageDataURI, "data:image/") {
				sb.WriteString("<p class=\"attachment\">[image omitted]</p>\n")
				continue
			}
			fmt.Fprintf(&sb, "<img class=\"inline-image\" alt=\"image\" src=\"%s\">\n", html.EscapeString(p.ImageDataURI))
		case model.File:
			fmt.Fprintf(&sb, "<p class=\"attachment\">Attachment: <code>%s</code> (%s)</p>\n",
				html.EscapeString(p.Filename), html.EscapeString(p.MediaType))
		default:
			return "", model.UnknownPart(part)
		}
	}
	sb.WriteString("                </div>\n")

	if msg.Role == model.RoleAssistant && e.options.IncludeMetadata {
		if stats := formatMessageStats(msg); stats != "" {
			fmt.Fprintf(&sb, "                <div class=\"message-stats\">%s</div>\n", html.EscapeString(stats))
		}
	}
	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

// renderMarkdown converts reply markdown to HTML.
func renderMarkdown(text string) []byte {
	renderer := blackfriday.HtmlRenderer(markdownHTMLFlags, "", "")
	return blackfriday.Markdown([]byte(text), renderer, markdownExtensions)
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const pageCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme { --bg: #14161a; --fg: #e6e6e6; --muted: #8b929c; --user: #1f2933; --assistant: #191c21; --border: #2c313a; --code: #0d0f12; }
        .light-theme { --bg: #ffffff; --fg: #1b1f24; --muted: #5d6570; --user: #eef3f8; --assistant: #f8f9fa; --border: #d8dde3; --code: #f1f3f5; }
        body { background: var(--bg); color: var(--fg); font-family: var(--font-sans); line-height: 1.6; }
        .container { max-width: 860px; margin: 0 auto; padding: 32px 20px; }
        .header { border-bottom: 1px solid var(--border); margin-bottom: 24px; padding-bottom: 16px; }
        .header h1 { font-size: 1.6em; margin-bottom: 8px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; color: var(--muted); font-size: 0.9em; }
        .message { border: 1px solid var(--border); border-radius: 8px; margin-bottom: 16px; padding: 14px 18px; }
        .user-message { background: var(--user); }
        .assistant-message { background: var(--assistant); }
        .message-header { display: flex; justify-content: space-between; color: var(--muted); font-size: 0.85em; margin-bottom: 8px; }
        .role-label { font-weight: 600; }
        .message-content p { margin: 0.5em 0; }
        .user-text { white-space: pre-wrap; }
        .message-content pre { background: var(--code); border-radius: 6px; overflow-x: auto; padding: 12px; }
        .message-content code { font-family: var(--font-mono); font-size: 0.9em; }
        .message-content table { border-collapse: collapse; margin: 0.5em 0; }
        .message-content th, .message-content td { border: 1px solid var(--border); padding: 4px 8px; }
        .inline-image { border-radius: 6px; display: block; margin: 8px 0; max-width: 100%; }
        .attachment { color: var(--muted); font-style: italic; }
        .message-stats { color: var(--muted); font-size: 0.8em; margin-top: 8px; }
        .footer { border-top: 1px solid var(--border); color: var(--muted); font-size: 0.85em; margin-top: 32px; padding-top: 16px; text-align: center; }
        @media (max-width: 600px) { .container { padding: 16px 10px; } }
    </style>
`
