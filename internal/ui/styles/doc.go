// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles of the full-screen
interface.

# Color System (colors.go)

All colors are lipgloss AdaptiveColor values. NewTheme pins the light or
dark variant with lipgloss.SetHasDarkBackground, so the configured theme
wins over terminal detection.

  - Purple - Assistant messages and the selected chat
  - Cyan - Brand, user messages and focus
  - Emerald, Amber, Rose - Ready, warning and error states

# Theme (theme.go)

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)
	if w := theme.SidebarWidth(); w > 0 {
	    // room for the chat list
	}

Layout modes follow the terminal width: narrow terminals hide the chat list.
*/
package styles
