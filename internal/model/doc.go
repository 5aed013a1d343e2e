// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// This package defines the core domain types used throughout the application
// for representing chats, their messages, the content parts a message is made
// of, and the static catalog of models that can answer them.
//
// # Key Types
//
//   - Chat: A titled conversation thread
//   - Message: One turn in a chat, authored by the user or the assistant
//   - ContentPart: Sealed sum type over Text, Image and File
//   - Model: Catalog entry (provider, name, capabilities)
//   - ResponseLength: Sentence cap applied to generation requests
//
// # Usage
//
// Create a chat and a user message:
//
//	chat := model.NewChat(model.DefaultChatTitle)
//	msg := model.NewUserMessage(chat.ID, "gpt-4o-mini", model.Text{Text: "Hello!"})
//
// Work with the catalog:
//
//	m, ok := model.Lookup("gemini-2.5-flash")
//	if ok && m.Has(model.CapImageInput) {
//	    fmt.Println(m.Title, "accepts images")
//	}
package model
