// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/ui/styles"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// =============================================================================
// CHAT LIST
// =============================================================================

// ChatList is the sidebar of chats grouped by creation date. The cursor
// moves independently of the current chat until the user selects.
type ChatList struct {
	theme   *styles.Theme
	chats   []model.Chat
	current string
	cursor  int
	width   int
	height  int
	now     func() time.Time
}

// NewChatList creates an empty list.
func NewChatList(theme *styles.Theme) *ChatList {
	return &ChatList{theme: theme, now: time.Now}
}

// SetSize sets the outer size of the list.
func (l *ChatList) SetSize(width, height int) {
	l.width, l.height = width, height
}

// SetChats replaces the chats. The cursor stays on the same chat when it
// still exists and otherwise follows current.
func (l *ChatList) SetChats(chats []model.Chat, current string) {
	var cursorID string
	if l.cursor < len(l.chats) {
		cursorID = l.chats[l.cursor].ID
	}
	moved := current != l.current
	l.chats = chats
	l.current = current

	target := cursorID
	if moved || target == "" {
		target = current
	}
	l.cursor = 0
	for i, c := range chats {
		if c.ID == target {
			l.cursor = i
			return
		}
	}
	for i, c := range chats {
		if c.ID == current {
			l.cursor = i
			return
		}
	}
}

// MoveUp moves the cursor to the previous chat.
func (l *ChatList) MoveUp() {
	if l.cursor > 0 {
		l.cursor--
	}
}

// MoveDown moves the cursor to the next chat.
func (l *ChatList) MoveDown() {
	if l.cursor < len(l.chats)-1 {
		l.cursor++
	}
}

// Selected returns the chat under the cursor.
func (l *ChatList) Selected() (model.Chat, bool) {
	if l.cursor < 0 || l.cursor >= len(l.chats) {
		return model.Chat{}, false
	}
	return l.chats[l.cursor], true
}

// View renders the list, scrolled so the cursor is visible.
func (l *ChatList) View(focused bool) string {
	inner := l.width - 2
	if inner < 4 {
		return ""
	}

	var lines []string
	cursorLine := 0
	bucket := ""
	now := l.now()
	for i, c := range l.chats {
		if b := util.DateBucket(c.CreatedAt, now); b != bucket {
			bucket = b
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, l.theme.BucketHeader.UnsetMarginTop().Render(bucket))
		}

		title := util.PadRight(util.TruncateWidth(c.GetTitle(), inner-2), inner-2)
		style := l.theme.ChatItem
		if c.ID == l.current {
			style = l.theme.ChatItemCurrent
		}
		row := style.Render(" " + title + " ")
		if i == l.cursor && focused {
			row = l.theme.ChatItemCursor.Render(row)
			cursorLine = len(lines)
		} else if i == l.cursor {
			cursorLine = len(lines)
		}
		lines = append(lines, row)
	}

	if l.height > 0 && len(lines) > l.height {
		start := cursorLine - l.height/2
		if start < 0 {
			start = 0
		}
		if start > len(lines)-l.height {
			start = len(lines) - l.height
		}
		lines = lines[start : start+l.height]
	}

	style := l.theme.Sidebar
	if focused {
		style = l.theme.SidebarFocused
	}
	return style.Width(inner).Height(l.height).Render(strings.Join(lines, "\n"))
}
