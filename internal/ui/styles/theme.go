// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styles of the full-screen interface.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderTitle lipgloss.Style

	// ==========================================================================
	// CHAT LIST
	// ==========================================================================

	Sidebar         lipgloss.Style
	SidebarFocused  lipgloss.Style
	BucketHeader    lipgloss.Style
	ChatItem        lipgloss.Style
	ChatItemCurrent lipgloss.Style
	ChatItemCursor  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageMeta    lipgloss.Style
	UserText       lipgloss.Style
	Attachment     lipgloss.Style
	Empty          lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS
	// ==========================================================================

	InputContainer lipgloss.Style
	InputFocused   lipgloss.Style
	StatusBar      lipgloss.Style
	StatusModel    lipgloss.Style
	StatusCost     lipgloss.Style
	Spinner        lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style

	// ==========================================================================
	// NOTICES
	// ==========================================================================

	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
}

// NewTheme returns a theme for mode "dark", "light" or "auto". Auto asks
// the terminal for its background.
func NewTheme(mode string) *Theme {
	isDark := true
	switch mode {
	case "light":
		isDark = false
	case "dark":
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// GlamourStyle is the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	// Chat list
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	t.SidebarFocused = t.Sidebar.
		BorderForeground(Purple)

	t.BucketHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary).
		MarginTop(1)

	t.ChatItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.ChatItemCurrent = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.ChatItemCursor = lipgloss.NewStyle().
		Background(SelectionBg)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.MessageMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.UserText = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.Attachment = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true).
		PaddingLeft(2)

	t.Empty = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	// Input and status
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)

	t.InputFocused = t.InputContainer.
		BorderForeground(Cyan)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusModel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.StatusCost = lipgloss.NewStyle().
		Foreground(Amber)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ShortcutKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Notices
	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(Emerald)

	t.ErrorStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose)

	t.WarningStyle = lipgloss.NewStyle().
		Foreground(Amber)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, no chat list
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// SidebarWidth is the chat list width for the layout, 0 when hidden.
func (t *Theme) SidebarWidth() int {
	switch t.GetLayoutMode() {
	case LayoutNarrow:
		return 0
	case LayoutMedium:
		return 24
	default:
		return 32
	}
}
