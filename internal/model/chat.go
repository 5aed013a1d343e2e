// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// DefaultChatTitle is the title of chats that have not been named yet.
const DefaultChatTitle = "New chat"

// Chat is a titled conversation thread. Only the title ever changes.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"date"`
}

// NewChat creates a chat with a fresh id.
func NewChat(title string) Chat {
	return NewChatWithID(NewID(), title)
}

// NewChatWithID creates a chat with a caller supplied id.
func NewChatWithID(id, title string) Chat {
	if title == "" {
		title = DefaultChatTitle
	}
	return Chat{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
}

// GetTitle returns the title, or the default for an untitled chat.
func (c Chat) GetTitle() string {
	if c.Title == "" {
		return DefaultChatTitle
	}
	return c.Title
}

// SortChats orders chats most recently created first.
func SortChats(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
}

// SortMessages orders messages by date, oldest first.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date.Before(msgs[j].Date)
	})
}
