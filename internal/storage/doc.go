// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable chat persistence for t3lepathy.
//
// This package keeps chats, their messages and key/value settings in a
// single SQLite database. Messages carry a secondary index on their owning
// chat so a chat's history is one range query, and deleting a chat removes
// every message it owns.
//
// # Key Types
//
//   - Store: SQLite-backed record store for chats, messages and settings
//   - StoreError: Comparable error values such as ErrNotFound
//
// # Usage
//
// Open a store and save a chat with a message:
//
//	store, err := storage.Open(filepath.Join(dataDir, "chat.db"))
//	err = store.PutChat(ctx, chat)
//	err = store.PutMessage(ctx, msg)
//
// Read a chat back, oldest message first:
//
//	msgs, err := store.GetMessagesByChat(ctx, chat.ID)
//
// Delete a chat and everything it owns:
//
//	n, err := store.DeleteChatCascade(ctx, chat.ID)
//
// # Storage Location
//
// The database lives in ~/.t3lepathy/chat.db unless configured otherwise.
package storage
