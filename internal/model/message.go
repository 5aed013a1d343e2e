// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn in a chat.
type Message struct {
	// Identity
	ID     string    `json:"id"`
	ChatID string    `json:"chatId"`
	Role   Role      `json:"role"`
	Date   time.Time `json:"date"`

	// Usage, nil until the provider reports it
	Tokens *int `json:"tokens"`

	// Model that produced (assistant) or received (user) the message
	Model *string `json:"model"`

	Content Content `json:"content"`
}

// NewUserMessage creates a user message in chatID addressed to modelName.
func NewUserMessage(chatID, modelName string, parts ...ContentPart) Message {
	return Message{
		ID:      NewID(),
		ChatID:  chatID,
		Role:    RoleUser,
		Date:    time.Now().UTC(),
		Model:   stringPtr(modelName),
		Content: Content(parts).Clone(),
	}
}

// NewAssistantPlaceholder creates the empty assistant message that a reply
// streams into. Tokens stay nil until usage is reported.
func NewAssistantPlaceholder(chatID, modelName string) Message {
	return Message{
		ID:      NewID(),
		ChatID:  chatID,
		Role:    RoleAssistant,
		Date:    time.Now().UTC(),
		Model:   stringPtr(modelName),
		Content: Content{},
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Tokens != nil {
		out.Tokens = intPtr(*m.Tokens)
	}
	if m.Model != nil {
		out.Model = stringPtr(*m.Model)
	}
	out.Content = m.Content.Clone()
	return out
}

// ModelName returns the model name or "" when unset.
func (m Message) ModelName() string {
	if m.Model == nil {
		return ""
	}
	return *m.Model
}

// TokenCount returns the token count or 0 when unknown.
func (m Message) TokenCount() int {
	if m.Tokens == nil {
		return 0
	}
	return *m.Tokens
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// NewID returns a fresh random identifier for chats and messages.
func NewID() string {
	return uuid.NewString()
}

// IntPtr returns a pointer to a copy of n.
func IntPtr(n int) *int {
	return intPtr(n)
}

func intPtr(n int) *int {
	return &n
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
