// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// MaxTitleWidth is the display width a chat title is cut to.
const MaxTitleWidth = 60

const ellipsis = "..."

// TruncateWidth cuts s to at most maxWidth terminal cells, counting wide
// (CJK, emoji) runes as two. A cut string ends in "..." when there is room
// for it.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// StringWidth returns the number of terminal cells s occupies.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads s with spaces to width cells.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// titleQuotes are stripped from both ends of a generated title.
const titleQuotes = "\"'`“”‘’«»"

// NormalizeTitle cleans a model-generated chat title: surrounding quotes
// and whitespace go, internal whitespace collapses to single spaces, the
// text is NFC-normalized and cut to MaxTitleWidth cells.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := strings.TrimSpace(strings.Trim(s, titleQuotes))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.Join(strings.Fields(s), " ")
	s = norm.NFC.String(s)
	return TruncateWidth(s, MaxTitleWidth)
}

// Preview flattens text to a single line of at most width cells.
func Preview(s string, width int) string {
	return TruncateWidth(strings.Join(strings.Fields(s), " "), width)
}
