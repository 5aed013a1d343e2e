// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aljaroudi/t3lepathy/internal/ui/styles"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the state shown at the left of the status bar.
type Status int

const (
	StatusReady Status = iota
	StatusStreaming
	StatusError
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusStreaming:
		return "Streaming..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns a shape for the status so it reads without color.
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return styles.StatusIndicators.Success
	case StatusStreaming:
		return styles.StatusIndicators.Pending
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return "-"
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar is the bottom line: status, model, usage and key hints.
type StatusBar struct {
	Status    Status
	Spinner   string // spinner frame while streaming
	Model     string
	NoKey     bool
	Grounding bool
	Tokens    int
	Cost      float64
	Notice    string

	ShowTokens bool
	ShowCost   bool

	theme *styles.Theme
	width int
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{theme: theme}
}

// SetWidth sets the bar width.
func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

// View renders the bar. The notice replaces the key hints when set.
func (s *StatusBar) View() string {
	t := s.theme

	status := s.Status.Icon() + " " + s.Status.String()
	switch s.Status {
	case StatusStreaming:
		status = t.Spinner.Render(s.Spinner) + " " + s.Status.String()
	case StatusError:
		status = t.ErrorStyle.Render(status)
	default:
		status = t.SuccessStyle.Render(status)
	}

	left := []string{status, t.StatusModel.Render(s.Model)}
	if s.NoKey {
		left = append(left, t.WarningStyle.Render(styles.StatusIndicators.Warning+" no key"))
	}
	if s.Grounding {
		left = append(left, "web")
	}
	if s.ShowTokens && s.Tokens > 0 {
		left = append(left, util.FormatTokens(s.Tokens)+" tokens")
	}
	if s.ShowCost && s.Cost > 0 {
		left = append(left, t.StatusCost.Render(util.FormatCost(s.Cost)))
	}
	leftStr := strings.Join(left, "  ")

	right := s.hints()
	if s.Notice != "" {
		right = s.Notice
	}

	inner := s.width - t.StatusBar.GetHorizontalPadding()
	gap := inner - lipgloss.Width(leftStr) - lipgloss.Width(right)
	if gap < 1 {
		// drop the right side before wrapping
		right, gap = "", inner-lipgloss.Width(leftStr)
		if gap < 0 {
			gap = 0
		}
	}
	return t.StatusBar.Width(s.width).Render(leftStr + strings.Repeat(" ", gap) + right)
}

func (s *StatusBar) hints() string {
	t := s.theme
	pairs := [][2]string{{"tab", "focus"}, {"ctrl+n", "new"}, {"esc", "cancel"}, {"ctrl+c", "quit"}}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = t.ShortcutKey.Render(p[0]) + " " + t.ShortcutDesc.Render(p[1])
	}
	return strings.Join(parts, "  ")
}
