// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aljaroudi/t3lepathy/internal/config"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderer prints messages, rendering assistant markdown with glamour when
// enabled.
type renderer struct {
	md   *glamour.TermRenderer
	ui   config.UIConfig
	mute bool
}

// newRenderer builds a renderer. Markdown is rendered only when the config
// asks for it and tty is true, so piped output stays plain.
func newRenderer(ui config.UIConfig, tty, quiet bool) *renderer {
	r := &renderer{ui: ui, mute: quiet}
	if !ui.RenderMarkdown || !tty {
		return r
	}

	style := "dark"
	switch {
	case ui.Theme == "light":
		style = "light"
	case ui.Theme == "auto" && !HasDarkBackground():
		style = "light"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(min(GetTerminalWidth()-4, 100)),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// markdown reports whether replies are rendered after they finish instead
// of streamed.
func (r *renderer) markdown() bool {
	return r.md != nil
}

// renderMarkdown renders content for the terminal, falling back to the raw
// text when rendering fails.
func (r *renderer) renderMarkdown(content string) string {
	if r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// MESSAGES
// =============================================================================

// header prints the role line of a message.
func (r *renderer) header(w io.Writer, msg model.Message) {
	style := UserStyle
	if msg.Role == model.RoleAssistant {
		style = AssistantStyle
	}
	fmt.Fprintf(w, "%s %s\n", style.Render(msg.Role.DisplayName()),
		DimStyle.Render(msg.Date.Local().Format("Jan 2 15:04")))
}

// message prints a whole stored message.
func (r *renderer) message(w io.Writer, msg model.Message) {
	r.header(w, msg)
	if text := msg.Content.PlainText(); text != "" {
		if msg.Role == model.RoleAssistant {
			fmt.Fprintln(w, strings.TrimRight(r.renderMarkdown(text), "\n"))
		} else {
			fmt.Fprintln(w, text)
		}
	}
	r.attachments(w, msg.Content)
	if msg.Role == model.RoleAssistant {
		r.footer(w, msg)
	}
	fmt.Fprintln(w)
}

// attachments prints one line per Image or File part.
func (r *renderer) attachments(w io.Writer, content model.Content) {
	for _, p := range content {
		switch p := p.(type) {
		case model.Image:
			fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("[image %s, %s]", p.MediaType, dataURISize(p.ImageDataURI))))
		case model.File:
			fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("[file %s, %s]", p.Filename, dataURISize(p.DataURI))))
		}
	}
}

// footer prints the model, token count and cost of an assistant message,
// as enabled in the [ui] config.
func (r *renderer) footer(w io.Writer, msg model.Message) {
	if r.mute {
		return
	}
	parts := []string{msg.ModelName()}
	if r.ui.ShowTokens && msg.Tokens != nil {
		parts = append(parts, util.FormatTokens(*msg.Tokens)+" tokens")
	}
	if r.ui.ShowCost {
		if cost, ok := model.MessagePrice(msg); ok {
			parts = append(parts, util.FormatCost(cost))
		}
	}
	fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, " · ")))
}

// dataURISize formats the decoded size of a data URI.
func dataURISize(uri string) string {
	_, data, err := model.DecodeDataURI(uri)
	if err != nil {
		return "unreadable"
	}
	return formatBytes(len(data))
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
