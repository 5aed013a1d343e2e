// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/ui/styles"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// =============================================================================
// MESSAGE VIEW
// =============================================================================

// MessageOptions selects what the footer of an assistant message shows.
type MessageOptions struct {
	Markdown   bool
	ShowTokens bool
	ShowCost   bool
}

// MessageView renders messages for the transcript. Assistant text goes
// through glamour; rendered output is cached per message until its text or
// the width changes.
type MessageView struct {
	theme *styles.Theme
	opts  MessageOptions
	width int

	md    *glamour.TermRenderer
	cache map[string]renderedText
}

type renderedText struct {
	text string
	out  string
}

// NewMessageView creates a message renderer.
func NewMessageView(theme *styles.Theme, opts MessageOptions) *MessageView {
	return &MessageView{
		theme: theme,
		opts:  opts,
		width: 80,
		cache: make(map[string]renderedText),
	}
}

// SetWidth sets the wrap width and drops cached output when it changes.
func (v *MessageView) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == v.width && v.md != nil {
		return
	}
	v.width = width
	v.md = nil
	v.cache = make(map[string]renderedText)
}

func (v *MessageView) renderer() *glamour.TermRenderer {
	if v.md == nil && v.opts.Markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(v.theme.GlamourStyle()),
			glamour.WithWordWrap(v.width-4),
		)
		if err == nil {
			v.md = md
		}
	}
	return v.md
}

// Render returns one message with its header and, for finished assistant
// messages, a footer.
func (v *MessageView) Render(msg model.Message, streaming bool) string {
	var b strings.Builder

	label := v.theme.UserLabel.Render(msg.Role.DisplayName())
	if msg.Role == model.RoleAssistant {
		label = v.theme.AssistantLabel.Render(msg.Role.DisplayName())
	}
	b.WriteString(label + " " + v.theme.MessageMeta.Render(msg.Date.Local().Format("15:04")) + "\n")

	if text := msg.Content.PlainText(); text != "" {
		b.WriteString(v.text(msg, text) + "\n")
	}
	for _, p := range msg.Content {
		switch p := p.(type) {
		case model.Text:
			// rendered above
		case model.Image:
			b.WriteString(v.theme.Attachment.Render(fmt.Sprintf("[image %s]", p.MediaType)) + "\n")
		case model.File:
			b.WriteString(v.theme.Attachment.Render(fmt.Sprintf("[file %s]", p.Filename)) + "\n")
		default:
			panic(model.UnknownPart(p))
		}
	}

	if msg.Role == model.RoleAssistant && !streaming {
		if footer := v.footer(msg); footer != "" {
			b.WriteString(v.theme.MessageMeta.Render(footer) + "\n")
		}
	}
	return b.String()
}

func (v *MessageView) text(msg model.Message, text string) string {
	if msg.Role != model.RoleAssistant {
		return v.theme.UserText.Width(v.width).Render(text)
	}
	if cached, ok := v.cache[msg.ID]; ok && cached.text == text {
		return cached.out
	}
	out := v.theme.UserText.Width(v.width).Render(text)
	if md := v.renderer(); md != nil {
		if rendered, err := md.Render(text); err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}
	v.cache[msg.ID] = renderedText{text: text, out: out}
	return out
}

func (v *MessageView) footer(msg model.Message) string {
	parts := []string{msg.ModelName()}
	if v.opts.ShowTokens && msg.Tokens != nil {
		parts = append(parts, util.FormatTokens(*msg.Tokens)+" tokens")
	}
	if v.opts.ShowCost {
		if cost, ok := model.MessagePrice(msg); ok {
			parts = append(parts, util.FormatCost(cost))
		}
	}
	return "  " + strings.Join(parts, " · ")
}

// Forget drops cached output for messages not in keep.
func (v *MessageView) Forget(keep []model.Message) {
	ids := make(map[string]bool, len(keep))
	for _, m := range keep {
		ids[m.ID] = true
	}
	for id := range v.cache {
		if !ids[id] {
			delete(v.cache, id)
		}
	}
}
