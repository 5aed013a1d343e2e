// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aljaroudi/t3lepathy/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if w := m.theme.SidebarWidth(); w > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(m.focus == focusList), body)
	}

	inputStyle := m.theme.InputContainer
	if m.focus == focusInput {
		inputStyle = m.theme.InputFocused
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		inputStyle.Width(m.width).Render(m.input.View()),
		m.status.View(),
	)
}

func (m *Model) headerView() string {
	brand := m.theme.HeaderBrand.Render("t3lepathy")
	if m.opts.Version != "" {
		brand += m.theme.MessageMeta.Render(" " + m.opts.Version)
	}
	room := m.width - lipgloss.Width(brand) - 4
	title := m.theme.HeaderTitle.Render(util.TruncateWidth(m.currentChat().GetTitle(), room))
	return m.theme.Header.Width(m.width).Render(brand + "  " + title)
}

// helpView lists key bindings and slash commands.
func (m *Model) helpView() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keys") + "\n\n")
	for _, k := range m.keys.HelpBindings() {
		h := k.Help()
		fmt.Fprintf(&b, "  %s %s\n",
			m.theme.ShortcutKey.Render(util.PadRight(h.Key, 14)),
			m.theme.ShortcutDesc.Render(h.Desc))
	}
	b.WriteString("\n" + m.theme.HeaderTitle.Render("Commands") + "\n\n")
	for _, c := range slashHelp {
		fmt.Fprintf(&b, "  %s %s\n",
			m.theme.ShortcutKey.Render(util.PadRight(c[0], 28)),
			m.theme.ShortcutDesc.Render(c[1]))
	}
	b.WriteString("\n" + m.theme.MessageMeta.Render("Esc or F1 closes this screen."))
	return b.String()
}
